package domain

import (
	"reflect"
	"time"
)

// EntityState is one entity as read in a single update cycle.
type EntityState struct {
	EntityID    string `json:"entity_id"`
	Hub         string `json:"hub"`
	Slug        string `json:"slug,omitempty"` // hub part of entity ids and topics
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Platform    string `json:"platform"`
	DeviceClass string `json:"device_class,omitempty"`
	Value       string `json:"value"`
	Error       string `json:"error,omitempty"` // set when the update failed this cycle
}

// OK reports whether the entity updated successfully.
func (e EntityState) OK() bool { return e.Error == "" }

// Snapshot is the result of one update cycle over every entity.
type Snapshot struct {
	Timestamp   time.Time     `json:"timestamp"`
	LastFetched time.Time     `json:"last_fetched"`
	Entities    []EntityState `json:"entities"`
}

// Hubs returns the distinct hub names in entity order.
func (s *Snapshot) Hubs() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	var hubs []string
	for _, e := range s.Entities {
		if !seen[e.Hub] {
			seen[e.Hub] = true
			hubs = append(hubs, e.Hub)
		}
	}
	return hubs
}

// Failed counts entities whose update failed.
func (s *Snapshot) Failed() int {
	n := 0
	for _, e := range s.Entities {
		if !e.OK() {
			n++
		}
	}
	return n
}

// Changed returns true if cur differs from prev. Timestamps are ignored so
// an unchanged poll does not trigger a publish.
func Changed(prev, cur *Snapshot) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}
	return !reflect.DeepEqual(prev.Entities, cur.Entities)
}

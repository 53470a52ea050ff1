package sensors

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNotReady means no hub was available after the initial fetch. It covers
// both "account has no hubs" and "fetch failed"; callers retry later.
var ErrNotReady = errors.New("no Genie hubs available yet")

// Setup fetches once and creates the entities for every discovered hub: the
// status view first, then one field view per kind. Hubs are visited in name
// order. A nil or empty kinds slice selects every kind.
func Setup(ctx context.Context, data DataSource, kinds []SensorKind, logger *logrus.Logger) ([]Entity, error) {
	data.Refresh(ctx)

	hubs := data.Hubs()
	if len(hubs) == 0 {
		return nil, ErrNotReady
	}
	if len(kinds) == 0 {
		kinds = AllKinds()
	}

	entities := make([]Entity, 0, len(hubs)*(len(kinds)+1))
	taken := make(map[string]bool)
	for _, name := range hubs.Names() {
		slug := uniqueSlug(name, hubs[name].Hash, taken)
		entry := logger.WithField("hub", name)
		if slug != name {
			entry.WithField("entity_prefix", slug).Warn("Hub name collides with another hub's entity ids, using fallback")
		}
		entry.Info("Discovered hub")

		status := NewStatusView(data, name)
		status.slug = slug
		entities = append(entities, status)
		for _, kind := range kinds {
			field := NewFieldView(data, name, kind)
			field.slug = slug
			entities = append(entities, field)
		}
	}
	return entities, nil
}

// uniqueSlug picks the entity id prefix of a hub. Names that only differ in
// case or spaces map to the same ids, so a later hub falls back to its hash,
// then to a numbered name.
func uniqueSlug(name, hash string, taken map[string]bool) string {
	key := func(s string) string { return ObjectID(StatusEntityID(s)) }
	slug := name
	if taken[key(slug)] && hash != "" {
		slug = hash
	}
	for n := 2; taken[key(slug)]; n++ {
		slug = fmt.Sprintf("%s_%d", name, n)
	}
	taken[key(slug)] = true
	return slug
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jkaberg/genie-hass/internal/domain"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// SnapshotSource provides the latest update cycle.
type SnapshotSource interface {
	Latest() *domain.Snapshot
}

type stateResponse struct {
	Ready       bool                 `json:"ready"`
	UpdatedAt   *time.Time           `json:"updated_at,omitempty"`
	LastFetched *time.Time           `json:"last_fetched,omitempty"`
	Entities    []domain.EntityState `json:"entities"`
}

// NewRouter serves GET /state and GET /healthz.
func NewRouter(src SnapshotSource, logger *logrus.Logger) *httprouter.Router {
	router := httprouter.New()
	router.GET("/state", State(src, logger))
	router.GET("/healthz", Health)
	return router
}

// State returns the latest snapshot as JSON. Before the first update cycle
// it answers 503 with ready=false.
func State(src SnapshotSource, logger *logrus.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := stateResponse{Entities: []domain.EntityState{}}
		status := http.StatusServiceUnavailable

		if snap := src.Latest(); snap != nil {
			status = http.StatusOK
			resp.Ready = true
			resp.Entities = snap.Entities
			updated := snap.Timestamp
			resp.UpdatedAt = &updated
			if !snap.LastFetched.IsZero() {
				fetched := snap.LastFetched
				resp.LastFetched = &fetched
			}
		}

		marshaled, err := json.Marshal(resp)
		if err != nil {
			logger.WithError(err).Error("http: failed to marshal state")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(marshaled)
	}
}

// Health always answers "ok".
func Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

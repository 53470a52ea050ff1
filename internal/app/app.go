package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jkaberg/genie-hass/internal/bus"
	"github.com/jkaberg/genie-hass/internal/config"
	"github.com/jkaberg/genie-hass/internal/domain"
	"github.com/jkaberg/genie-hass/internal/fetcher"
	"github.com/jkaberg/genie-hass/internal/sensors"
	"github.com/jkaberg/genie-hass/internal/transmission"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Run sets up the entities, then refreshes them on cfg.UpdateInterval and
// hands every snapshot to tx (nil: log only) until ctx is cancelled.
func Run(
	ctx context.Context,
	cfg *config.Config,
	source fetcher.HubSource,
	tx transmission.Transmitter,
	messageBus *bus.Bus,
	logger *logrus.Logger,
) error {
	data, entities, err := setup(ctx, cfg, source, logger)
	if err != nil {
		return err
	}
	logger.WithField("entities", len(entities)).Info("Setup complete")

	grp, ctx := errgroup.WithContext(ctx)

	var sub <-chan *domain.Snapshot
	if tx != nil {
		sub = messageBus.Subscribe()
	}

	// Updater ----------------------------------------------------------------
	grp.Go(func() error {
		ticker := time.NewTicker(cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			snap := UpdateOnce(ctx, data, entities, logger)
			messageBus.Publish(snap)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	// Transmitter -----------------------------------------------------------
	if tx != nil {
		grp.Go(func() error {
			var lastSnap *domain.Snapshot
			var lastSent time.Time
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case snap, ok := <-sub:
					if !ok {
						return nil
					}
					force := cfg.ForceUpdateInterval > 0 && time.Since(lastSent) >= cfg.ForceUpdateInterval
					if !force && !domain.Changed(lastSnap, snap) {
						continue
					}
					if !tx.IsConnected() {
						logger.Warn("MQTT not connected, skipping transmit")
						lastSnap = nil
						continue
					}
					if err := tx.Transmit(snap); err != nil {
						logger.WithError(err).Warn("MQTT transmit failed")
						// Retry on the next snapshot even if nothing changed.
						lastSnap = nil
						continue
					}
					lastSnap = snap
					lastSent = time.Now()
				}
			}
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setup builds a fresh fetcher and the entity list, retrying while no hub is
// available. Each attempt gets a new fetcher so its rate limit does not turn
// the retry into a no-op.
func setup(ctx context.Context, cfg *config.Config, source fetcher.HubSource, logger *logrus.Logger) (*fetcher.Fetcher, []sensors.Entity, error) {
	kinds := cfg.SensorKinds()
	for attempt := 1; ; attempt++ {
		data := fetcher.New(source, cfg.FetchInterval, logger)
		entities, err := sensors.Setup(ctx, data, kinds, logger)
		if err == nil {
			return data, entities, nil
		}
		if !errors.Is(err, sensors.ErrNotReady) {
			return nil, nil, fmt.Errorf("setup failed: %w", err)
		}

		entry := logger.WithFields(logrus.Fields{
			"attempt":     attempt,
			"retry_after": cfg.SetupRetryInterval,
		})
		if lastErr := data.LastError(); lastErr != nil {
			entry = entry.WithError(lastErr)
		}
		entry.Warn("No Genie hubs available yet, retrying setup later")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(cfg.SetupRetryInterval):
		}
	}
}

// UpdateOnce refreshes every entity in order and collects the results. A
// failing entity is recorded in the snapshot and does not affect the others.
func UpdateOnce(ctx context.Context, data *fetcher.Fetcher, entities []sensors.Entity, logger *logrus.Logger) *domain.Snapshot {
	snap := &domain.Snapshot{
		Timestamp: time.Now(),
		Entities:  make([]domain.EntityState, 0, len(entities)),
	}

	for _, e := range entities {
		st := domain.EntityState{
			EntityID:    e.EntityID(),
			Hub:         e.Hub(),
			Slug:        e.Slug(),
			Name:        e.Name(),
			Icon:        e.Icon(),
			Platform:    e.Platform(),
			DeviceClass: e.DeviceClass(),
		}
		err := e.Refresh(ctx)
		if err == nil {
			st.Value, err = e.Value()
		}
		if err != nil {
			st.Error = err.Error()
			logger.WithError(err).WithField("entity_id", st.EntityID).Warn("Entity update failed")
		}
		snap.Entities = append(snap.Entities, st)
	}

	snap.LastFetched = data.LastSuccess()
	logger.WithFields(logrus.Fields{
		"hubs":     snap.Hubs(),
		"entities": len(snap.Entities),
		"failed":   snap.Failed(),
	}).Debug("Update cycle complete")
	return snap
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jkaberg/genie-hass/internal/bus"
	"github.com/jkaberg/genie-hass/internal/config"
	"github.com/jkaberg/genie-hass/internal/domain"
	"github.com/jkaberg/genie-hass/internal/fetcher"
	"github.com/jkaberg/genie-hass/internal/hub"
	"github.com/jkaberg/genie-hass/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parseHubs(t *testing.T, body string) hub.Hubs {
	t.Helper()
	var hubs hub.Hubs
	if err := json.Unmarshal([]byte(body), &hubs); err != nil {
		t.Fatalf("unmarshal hubs: %v", err)
	}
	for name, st := range hubs {
		st.Name = name
		hubs[name] = st
	}
	return hubs
}

// scriptedSource returns its responses in order, repeating the last one.
type scriptedSource struct {
	mu        sync.Mutex
	calls     int
	responses []hub.Hubs
}

func (s *scriptedSource) GetHubs(ctx context.Context) (hub.Hubs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	if s.responses[i] == nil {
		return nil, errors.New("cloud unavailable")
	}
	return s.responses[i], nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingTx struct {
	snaps        chan *domain.Snapshot
	disconnected atomic.Bool
}

func (r *recordingTx) Transmit(snap *domain.Snapshot) error {
	r.snaps <- snap
	return nil
}

func (r *recordingTx) IsConnected() bool { return !r.disconnected.Load() }

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Username, cfg.Password = "u", "p"
	cfg.UpdateInterval = 10 * time.Millisecond
	cfg.SetupRetryInterval = 10 * time.Millisecond
	cfg.ForceUpdateInterval = 0
	return cfg
}

const oneHub = `{"Living": {"attributes": {"fanc": "1"}, "sensors": {
	"battc": {"title": "Medium"}, "fillc": {"title": "50-60%"},
	"rfidc": {"title": "Karma"}}}}`

func TestRunPublishesSnapshot(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{parseHubs(t, oneHub)}}
	tx := &recordingTx{snaps: make(chan *domain.Snapshot, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, testConfig(), src, tx, bus.New(), testLogger()) }()

	var snap *domain.Snapshot
	select {
	case snap = <-tx.snaps:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot transmitted")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}

	values := make(map[string]domain.EntityState)
	for _, e := range snap.Entities {
		values[e.EntityID] = e
	}
	if len(values) != 5 {
		t.Fatalf("expected 5 entities, got %d", len(values))
	}
	if v := values["ritualsgenie.living_status"].Value; v != sensors.StateOn {
		t.Errorf("status = %q", v)
	}
	if v := values["ritualsgenie.living_battery_status"].Value; v != "Medium" {
		t.Errorf("battery = %q", v)
	}
	if e := values["ritualsgenie.living_wifi_signal"]; e.OK() {
		t.Errorf("wifi should have failed, got %+v", e)
	}
	if snap.LastFetched.IsZero() {
		t.Error("LastFetched not set")
	}
}

func TestRunRetriesSetupUntilHubsAppear(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{nil, {}, parseHubs(t, oneHub)}}
	tx := &recordingTx{snaps: make(chan *domain.Snapshot, 16)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, testConfig(), src, tx, bus.New(), testLogger())

	select {
	case <-tx.snaps:
	case <-time.After(5 * time.Second):
		t.Fatal("setup never succeeded")
	}
	if src.Calls() < 3 {
		t.Errorf("expected at least 3 fetch attempts, got %d", src.Calls())
	}
}

func TestRunStopsWhileNotReady(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{{}}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Run(ctx, testConfig(), src, nil, bus.New(), testLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestRunSkipsUnchangedSnapshots(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{parseHubs(t, oneHub)}}
	tx := &recordingTx{snaps: make(chan *domain.Snapshot, 64)}
	b := bus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, testConfig(), src, tx, b, testLogger())
		close(done)
	}()

	select {
	case <-tx.snaps:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot transmitted")
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if n := len(tx.snaps); n != 0 {
		t.Errorf("unchanged snapshots were transmitted %d more times", n)
	}
	if b.Latest() == nil {
		t.Error("bus should hold the latest snapshot")
	}
	if src.Calls() != 1 {
		t.Errorf("fetches should be rate limited, got %d", src.Calls())
	}
}

func TestRunWaitsForConnection(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{parseHubs(t, oneHub)}}
	tx := &recordingTx{snaps: make(chan *domain.Snapshot, 16)}
	tx.disconnected.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, testConfig(), src, tx, bus.New(), testLogger())

	select {
	case <-tx.snaps:
		t.Fatal("transmitted while disconnected")
	case <-time.After(100 * time.Millisecond):
	}

	// The unchanged snapshot is sent once the broker is back.
	tx.disconnected.Store(false)
	select {
	case <-tx.snaps:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot transmitted after reconnect")
	}
}

func TestUpdateOnceIsolatesFailures(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{parseHubs(t, `{"Living": {"sensors": {"battc": {"title": "Low"}}}}`)}}
	data := fetcher.New(src, time.Minute, testLogger())
	entities := []sensors.Entity{
		sensors.NewStatusView(data, "Living"),
		sensors.NewFieldView(data, "Living", sensors.BatteryStatus),
	}

	snap := UpdateOnce(context.Background(), data, entities, testLogger())

	if snap.Entities[0].OK() {
		t.Error("status without fanc should fail")
	}
	if !snap.Entities[1].OK() || snap.Entities[1].Value != "Low" {
		t.Errorf("battery = %+v", snap.Entities[1])
	}
	if snap.Failed() != 1 {
		t.Errorf("Failed() = %d", snap.Failed())
	}
}

func TestUpdateOnceLogsHubs(t *testing.T) {
	src := &scriptedSource{responses: []hub.Hubs{parseHubs(t, `{"Living": {}, "Bedroom": {}}`)}}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	data := fetcher.New(src, time.Minute, logger)
	entities := []sensors.Entity{
		sensors.NewStatusView(data, "Bedroom"),
		sensors.NewStatusView(data, "Living"),
	}

	UpdateOnce(context.Background(), data, entities, logger)

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "Update cycle complete" {
		t.Fatalf("last entry = %+v", entry)
	}
	hubs, ok := entry.Data["hubs"].([]string)
	if !ok || len(hubs) != 2 || hubs[0] != "Bedroom" || hubs[1] != "Living" {
		t.Errorf("hubs field = %v", entry.Data["hubs"])
	}
}

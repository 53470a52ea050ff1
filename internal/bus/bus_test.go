package bus

import (
	"testing"

	"github.com/jkaberg/genie-hass/internal/domain"
)

func TestPublishFanOut(t *testing.T) {
	b := New()
	a, c := b.Subscribe(), b.Subscribe()

	s := &domain.Snapshot{}
	b.Publish(s)

	if got := <-a; got != s {
		t.Error("subscriber a missed the snapshot")
	}
	if got := <-c; got != s {
		t.Error("subscriber c missed the snapshot")
	}
	if b.Latest() != s {
		t.Error("Latest() should return the last snapshot")
	}
}

func TestPublishDoesNotBlockBusySubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe()

	first, second := &domain.Snapshot{}, &domain.Snapshot{}
	b.Publish(first)
	b.Publish(second)

	if got := <-ch; got != first {
		t.Error("expected the buffered snapshot")
	}
	if b.Latest() != second {
		t.Error("Latest() should track the dropped snapshot too")
	}
}

func TestClose(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

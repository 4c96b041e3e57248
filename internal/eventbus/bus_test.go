package eventbus

import "testing"

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	sweeps, unsub := b.Subscribe(4, TypeSweepDone)
	defer unsub()

	b.Publish(Event{Type: TypeTaskFailed})
	b.Publish(Event{Type: TypeSweepDone, Data: 3})

	if len(all) != 2 {
		t.Fatalf("all got %d events", len(all))
	}
	if len(sweeps) != 1 {
		t.Fatalf("filtered got %d events", len(sweeps))
	}
	if e := <-sweeps; e.Data != 3 || e.Time.IsZero() {
		t.Fatalf("event = %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeTaskStarted})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("dropped = %d, want 4", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: TypeTaskStarted})
}

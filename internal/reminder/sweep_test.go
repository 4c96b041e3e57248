package reminder

import (
	"context"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestSweeper(store *fakeStore, sink *fakeSink, clock *fakeClock) *Sweeper {
	return NewSweeper(Deps{
		Store: store,
		Sink:  sink,
		Log:   logx.Nop(),
		Now:   clock.Now,
	}, DefaultPolicy(), time.UTC)
}

func TestSweepSendsOnceAndRecordsLabel(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 9, baseNow.Add(72*time.Hour+45*time.Second))
	store := newFakeStore(it)
	sink := &fakeSink{}
	clock := &fakeClock{now: baseNow}
	sw := newTestSweeper(store, sink, clock)

	res := sw.Tick(context.Background())
	if res.Sent != 1 || len(sink.Sent()) != 1 {
		t.Fatalf("first tick: %s", res)
	}
	got, _ := store.GetItem(context.Background(), "a1")
	if !got.HasLabel("threshold_72h") {
		t.Fatalf("label not recorded: %v", got.SentLabels)
	}
	if title := sink.Sent()[0].Title; !strings.Contains(title, "72 Jam") {
		t.Fatalf("title = %q", title)
	}

	clock.Advance(30 * time.Second)
	res = sw.Tick(context.Background())
	if res.Sent != 0 || len(sink.Sent()) != 1 {
		t.Fatalf("second tick must not resend: %s", res)
	}
}

func TestSweepDeliveryFailureRetriesNextTick(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 9, baseNow.Add(5*time.Hour))
	store := newFakeStore(it)
	sink := &fakeSink{fail: errBoom}
	clock := &fakeClock{now: baseNow}
	sw := newTestSweeper(store, sink, clock)

	res := sw.Tick(context.Background())
	if res.Failed != 1 || res.Sent != 0 {
		t.Fatalf("tick: %s", res)
	}
	got, _ := store.GetItem(context.Background(), "a1")
	if len(got.SentLabels) != 0 {
		t.Fatalf("failed delivery must not record a label: %v", got.SentLabels)
	}

	sink.SetFail(nil)
	clock.Advance(time.Minute)
	res = sw.Tick(context.Background())
	if res.Sent != 1 {
		t.Fatalf("retry tick: %s", res)
	}
	got, _ = store.GetItem(context.Background(), "a1")
	if !got.HasLabel("threshold_5h") {
		t.Fatalf("label after retry: %v", got.SentLabels)
	}
}

func TestSweepMissingTargetIsNotRecorded(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 7, baseNow.Add(-time.Minute))
	store := newFakeStore(it)
	sink := &fakeSink{noTarget: map[int64]bool{7: true}}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	res := sw.Tick(context.Background())
	if res.NoTarget != 1 || res.Sent != 0 {
		t.Fatalf("tick: %s", res)
	}
	got, _ := store.GetItem(context.Background(), "a1")
	if got.HasLabel(LabelDue) {
		t.Fatal("due must stay unset without a target")
	}
}

func TestSweepOverdueSendsDueThenDeletes(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 9, baseNow.Add(-25*time.Hour))
	store := newFakeStore(it)
	sink := &fakeSink{store: store}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	res := sw.Tick(context.Background())
	if res.Sent != 1 || res.Expired != 1 {
		t.Fatalf("tick: %s", res)
	}
	ops := store.Ops()
	want := []string{"send:🚨 DEADLINE TERCAPAI!", "label:due", "delete:a1"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", ops, want)
		}
	}
	if _, err := store.GetItem(context.Background(), "a1"); err == nil {
		t.Fatal("expired item should be gone")
	}
}

func TestSweepPhaseFailureIsIsolated(t *testing.T) {
	t.Parallel()

	task := taskAt("a1", 1, 9, baseNow.Add(-time.Minute))
	ev := eventAt("e1", 1, 9, baseNow.Add(-time.Minute))
	store := newFakeStore(task, ev)
	store.findErr[KindTask] = ErrStoreUnavailable
	sink := &fakeSink{}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	res := sw.Tick(context.Background())
	if res.PhaseErrors != 1 {
		t.Fatalf("phase errors = %d", res.PhaseErrors)
	}
	sent := sink.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Title, "EVENT DIMULAI") {
		t.Fatalf("events must still be swept: %+v", sent)
	}
}

func TestSweepRecoversItemPanic(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		taskAt("a1", 1, 9, baseNow.Add(-time.Minute)),
		taskAt("a2", 1, 9, baseNow.Add(-2*time.Minute)),
	)
	sink := &fakeSink{panicMsg: "sink exploded"}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	res := sw.Tick(context.Background())
	if res.ItemErrors != 2 || res.Loaded != 2 {
		t.Fatalf("both items should be attempted and recovered: %s", res)
	}
}

func TestSweepCustomReminderMarkedPerEntry(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 9, baseNow.Add(48*time.Hour))
	it.CustomReminders = []CustomReminder{
		{ID: "r1", FireAt: baseNow.Add(30 * time.Second), CreatedBy: 1},
		{ID: "r2", FireAt: baseNow.Add(6 * time.Hour), CreatedBy: 1},
	}
	store := newFakeStore(it)
	sink := &fakeSink{}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	// A reminder added while the tick runs must survive the tick's write.
	if err := store.AddCustomReminder(context.Background(), "a1", CustomReminder{ID: "r3", FireAt: baseNow.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	sw.Tick(context.Background())

	got, _ := store.GetItem(context.Background(), "a1")
	if len(got.CustomReminders) != 3 {
		t.Fatalf("custom reminders = %+v", got.CustomReminders)
	}
	for _, r := range got.CustomReminders {
		if (r.ID == "r1") != r.Sent {
			t.Fatalf("only r1 should be sent: %+v", got.CustomReminders)
		}
	}
	if len(sink.Sent()) != 1 || !strings.HasPrefix(sink.Sent()[0].Title, "🔔") {
		t.Fatalf("sent = %+v", sink.Sent())
	}
}

func TestSweepEditResetsLabels(t *testing.T) {
	t.Parallel()

	it := taskAt("a1", 1, 9, baseNow.Add(24*time.Hour))
	it.SentLabels = []string{"threshold_72h", "threshold_24h"}
	store := newFakeStore(it)
	sink := &fakeSink{}
	sw := newTestSweeper(store, sink, &fakeClock{now: baseNow})

	if res := sw.Tick(context.Background()); res.Sent != 0 {
		t.Fatalf("labelled item must stay quiet: %s", res)
	}

	newDeadline := baseNow.Add(72 * time.Hour)
	if err := store.UpdateItem(context.Background(), "a1", Patch{Anchor: &newDeadline, ResetLabels: true}); err != nil {
		t.Fatal(err)
	}
	if res := sw.Tick(context.Background()); res.Sent != 1 {
		t.Fatalf("72h should fire again after reset: %s", res)
	}
}

// cancelAwarePool refuses work on a done context, like a pool whose caller
// has given up.
type cancelAwarePool struct{}

func (cancelAwarePool) Do(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func TestSweepTickIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		taskAt("a1", 1, 9, baseNow.Add(5*time.Hour)),
		eventAt("e1", 1, 9, baseNow.Add(24*time.Hour)),
	)
	sink := &fakeSink{}
	sw := NewSweeper(Deps{
		Store: store,
		Sink:  sink,
		Pool:  cancelAwarePool{},
		Log:   logx.Nop(),
		Now:   (&fakeClock{now: baseNow}).Now,
	}, DefaultPolicy(), time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := sw.Tick(ctx)
	if res.PhaseErrors != 0 || res.Sent != 2 {
		t.Fatalf("tick under a cancelled context: %s", res)
	}
}

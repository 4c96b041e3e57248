package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestService(store *fakeStore, now time.Time) *Service {
	return NewService(Deps{Store: store, Log: logx.Nop(), Now: func() time.Time { return now }}, "Asia/Jakarta")
}

func TestAddTaskValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, baseNow) // 2025-06-01 19:00 WIB

	it, err := svc.AddTask(ctx, NewTaskInput{Owner: 1, Scope: 9, Title: "Esai", Deadline: "2025-06-02 09:00"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if !it.Task.Deadline.Equal(time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)) || it.Task.Tag != TagIndividual {
		t.Fatalf("task = %+v", it.Task)
	}
	if len(it.ID) != 32 {
		t.Fatalf("id = %q", it.ID)
	}

	cases := []struct {
		name string
		in   NewTaskInput
		want error
	}{
		{"past", NewTaskInput{Owner: 1, Title: "x", Deadline: "2025-06-01 18:59"}, ErrPastDeadline},
		{"now", NewTaskInput{Owner: 1, Title: "x", Deadline: "2025-06-01 19:00"}, ErrPastDeadline},
		{"format", NewTaskInput{Owner: 1, Title: "x", Deadline: "besok"}, ErrInvalidFormat},
		{"title", NewTaskInput{Owner: 1, Title: " ", Deadline: "2025-06-02 09:00"}, ErrInvalidFormat},
	}
	for _, tc := range cases {
		if _, err := svc.AddTask(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAddEventRange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(newFakeStore(), baseNow)

	_, err := svc.AddEvent(ctx, NewEventInput{Owner: 1, Title: "Rapat", Start: "2025-06-02 10:00", End: "2025-06-02 10:00"})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("equal end: err = %v", err)
	}
	_, err = svc.AddEvent(ctx, NewEventInput{Owner: 1, Title: "Rapat", Start: "2025-06-01 10:00", End: "2025-06-02 10:00"})
	if !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("past start: err = %v", err)
	}
	ev, err := svc.AddEvent(ctx, NewEventInput{Owner: 1, Title: "Rapat", Start: "2025-06-02 10:00", End: "2025-06-02 12:00"})
	if err != nil || ev.Kind() != KindEvent {
		t.Fatalf("AddEvent: %+v %v", ev, err)
	}
}

func TestUserTimezoneDrivesParsing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(newFakeStore(), baseNow)

	if _, err := svc.SetTimezone(ctx, 1, "Mars/Base"); !errors.Is(err, ErrUnknownTimezone) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.SetTimezone(ctx, 1, "UTC"); err != nil {
		t.Fatal(err)
	}
	it, err := svc.AddTask(ctx, NewTaskInput{Owner: 1, Title: "x", Deadline: "2025-06-02 09:00"})
	if err != nil {
		t.Fatal(err)
	}
	if !it.Task.Deadline.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("deadline = %v", it.Task.Deadline)
	}
	if tz, _, _ := svc.Timezone(ctx, 2); tz != "Asia/Jakarta" {
		t.Fatalf("default tz = %q", tz)
	}
}

func TestListOpenFiltersAndOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	done := taskAt("done", 1, 9, baseNow.Add(time.Hour))
	done.Completed = true
	store := newFakeStore(
		taskAt("later", 1, 9, baseNow.Add(3*time.Hour)),
		taskAt("sooner", 1, 9, baseNow.Add(time.Hour)),
		taskAt("past", 1, 9, baseNow.Add(-time.Hour)),
		taskAt("other", 2, 9, baseNow.Add(time.Hour)),
		taskAt("dm", 1, 0, baseNow.Add(time.Hour)),
		done,
	)
	svc := newTestService(store, baseNow)
	view, err := svc.ListOpen(ctx, 1, 9, KindTask)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 2 || view[0].ID != "sooner" || view[1].ID != "later" {
		t.Fatalf("view = %v", view)
	}
}

func TestEditResetsLabelsButKeepsCustomFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	it := taskAt("abcd1234", 1, 9, baseNow.Add(30*time.Hour))
	it.SentLabels = []string{"threshold_72h"}
	it.CustomReminders = []CustomReminder{{ID: "r1", FireAt: baseNow.Add(-time.Hour), Sent: true}}
	store := newFakeStore(it)
	svc := newTestService(store, baseNow)

	due := "2025-06-05 09:00"
	res, err := svc.Edit(ctx, 1, 9, KindTask, "abcd", EditRequest{Due: &due})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if len(res.After.SentLabels) != 0 {
		t.Fatalf("labels = %v", res.After.SentLabels)
	}
	if len(res.After.CustomReminders) != 1 || !res.After.CustomReminders[0].Sent {
		t.Fatalf("custom = %+v", res.After.CustomReminders)
	}

	title := "Baru"
	res, err = svc.Edit(ctx, 1, 9, KindTask, "1", EditRequest{Title: &title})
	if err != nil || res.After.Title != "Baru" {
		t.Fatalf("title edit: %+v %v", res.After, err)
	}

	past := "2025-06-01 08:00"
	if _, err := svc.Edit(ctx, 1, 9, KindTask, "1", EditRequest{Due: &past}); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("past edit: err = %v", err)
	}
	if _, err := svc.Edit(ctx, 1, 9, KindTask, "1", EditRequest{}); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("empty edit: err = %v", err)
	}
}

func TestEditEventShiftsEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ev := eventAt("e1", 1, 9, baseNow.Add(2*time.Hour)) // one hour long
	store := newFakeStore(ev)
	svc := newTestService(store, baseNow)

	start := "2025-06-02 12:00" // 05:00 UTC, after the old end
	res, err := svc.Edit(ctx, 1, 9, KindEvent, "1", EditRequest{Due: &start})
	if err != nil {
		t.Fatal(err)
	}
	wantStart := time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC)
	if !res.After.Event.Start.Equal(wantStart) || !res.After.Event.End.Equal(wantStart.Add(time.Hour)) {
		t.Fatalf("event = %+v", res.After.Event)
	}
}

func TestCompleteAndAssign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore(taskAt("t1", 1, 9, baseNow.Add(2*time.Hour)))
	svc := newTestService(store, baseNow)

	it, added, err := svc.Assign(ctx, 1, 9, "1", []int64{5, 6, 5, 0})
	if err != nil || added != 2 {
		t.Fatalf("Assign: added=%d err=%v", added, err)
	}
	if _, added, _ = svc.Assign(ctx, 1, 9, "1", []int64{6}); added != 0 {
		t.Fatalf("re-assign added %d", added)
	}
	if len(it.Task.Assigned) != 2 {
		t.Fatalf("assigned = %v", it.Task.Assigned)
	}

	res, err := svc.Complete(ctx, 1, 9, KindTask, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Lead != 2*time.Hour {
		t.Fatalf("lead = %v", res.Lead)
	}
	got, _ := store.GetItem(ctx, "t1")
	if !got.Completed || !got.CompletedAt.Equal(baseNow) {
		t.Fatalf("stored = %+v", got)
	}
	if _, err := svc.Complete(ctx, 1, 9, KindTask, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("completed task left the view: err = %v", err)
	}
}

func TestSetReminder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore(taskAt("t1", 1, 9, baseNow.Add(2*time.Hour)))
	svc := newTestService(store, baseNow)

	res, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", "30m")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reminder.FireAt.Equal(baseNow.Add(30*time.Minute)) || res.AfterAnchor {
		t.Fatalf("result = %+v", res)
	}
	res, err = svc.SetReminder(ctx, 1, 9, KindTask, "1", "1d")
	if err != nil || !res.AfterAnchor {
		t.Fatalf("after deadline should be allowed and flagged: %+v %v", res, err)
	}

	// 2025-06-01 18:00 WIB is an hour ago.
	if _, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", "2025-06-01 18:00"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("past reminder: err = %v", err)
	}
	if _, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", "0m"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("zero offset: err = %v", err)
	}
	if _, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", "soon"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("bad format: err = %v", err)
	}
	for _, huge := range []string{"250000d", "3651d", "99999999999999999999m"} {
		if _, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", huge); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("%s: err = %v", huge, err)
		}
	}
	if _, err := svc.SetReminder(ctx, 1, 9, KindTask, "1", "3650d"); err != nil {
		t.Fatalf("ten years out: %v", err)
	}

	got, _ := store.GetItem(ctx, "t1")
	if len(got.CustomReminders) != 3 || got.CustomReminders[0].ID == got.CustomReminders[1].ID {
		t.Fatalf("custom = %+v", got.CustomReminders)
	}
}

func TestImportSkipsExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore(taskAt("t1", 1, 9, baseNow.Add(time.Hour)))
	svc := newTestService(store, baseNow)
	in, skip, err := svc.Import(ctx, []Item{
		taskAt("t1", 1, 9, baseNow.Add(time.Hour)),
		taskAt("t2", 1, 9, baseNow.Add(time.Hour)),
	})
	if err != nil || in != 1 || skip != 1 {
		t.Fatalf("import: in=%d skip=%d err=%v", in, skip, err)
	}
}

func TestImportStoresCanonicalUTC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	wita := time.FixedZone("WITA", 8*3600)
	it := taskAt("t1", 1, 9, baseNow.Add(time.Hour).In(wita))
	it.CreatedAt = baseNow.In(wita)
	it.CustomReminders = []CustomReminder{{ID: "c1", FireAt: baseNow.Add(30 * time.Minute).In(wita), CreatedBy: 1}}

	store := newFakeStore()
	svc := newTestService(store, baseNow)
	if _, _, err := svc.Import(ctx, []Item{it}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetItem(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]time.Time{
		"deadline": got.Task.Deadline,
		"created":  got.CreatedAt,
		"custom":   got.CustomReminders[0].FireAt,
	} {
		if v.Location() != time.UTC {
			t.Errorf("%s stored in %v", name, v.Location())
		}
	}
	if !got.Task.Deadline.Equal(baseNow.Add(time.Hour)) {
		t.Fatalf("deadline moved: %v", got.Task.Deadline)
	}
}

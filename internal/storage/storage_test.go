package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func drivers(t *testing.T) map[string]Config {
	t.Helper()
	return map[string]Config{
		"memory": {Driver: "memory"},
		"file":   {Driver: "file", Path: filepath.Join(t.TempDir(), "items.json")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(t.TempDir(), "items.db")},
	}
}

func openStore(t *testing.T, cfg Config) reminder.Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func task(id string, owner, scope int64, deadline time.Time) reminder.Item {
	return reminder.Item{
		ID:        id,
		Owner:     owner,
		Scope:     scope,
		Title:     "tugas " + id,
		CreatedAt: t0.Add(-time.Hour),
		Task:      &reminder.TaskData{Deadline: deadline, Tag: reminder.TagIndividual},
	}
}

func TestStoreConformance(t *testing.T) {
	t.Parallel()

	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openStore(t, cfg)

			late := task("bbbb", 1, 9, t0.Add(3*time.Hour))
			early := task("aaaa", 1, 9, t0.Add(time.Hour))
			early.CreatedAt = t0 // created after late, listed first
			ev := reminder.Item{
				ID: "eeee", Owner: 1, Scope: 9, Title: "rapat", CreatedAt: t0,
				Event: &reminder.EventData{Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour)},
			}
			for _, it := range []reminder.Item{late, early, ev} {
				if err := st.InsertItem(ctx, it); err != nil {
					t.Fatalf("insert %s: %v", it.ID, err)
				}
			}
			if err := st.InsertItem(ctx, early); err == nil {
				t.Fatal("duplicate insert should fail")
			}

			tasks, err := st.FindItems(ctx, reminder.Filter{Kind: reminder.KindTask, Scope: reminder.ScopeOf(9), Open: true})
			if err != nil {
				t.Fatal(err)
			}
			if len(tasks) != 2 || tasks[0].ID != "aaaa" || tasks[1].ID != "bbbb" {
				t.Fatalf("tasks = %v", ids(tasks))
			}
			if got, _ := st.FindItems(ctx, reminder.Filter{AnchorAfter: t0.Add(time.Hour)}); len(got) != 2 {
				t.Fatalf("AnchorAfter is exclusive: %v", ids(got))
			}

			added, err := st.AddLabel(ctx, "aaaa", "threshold_5h")
			if err != nil || !added {
				t.Fatalf("AddLabel: %v %v", added, err)
			}
			if added, _ = st.AddLabel(ctx, "aaaa", "threshold_5h"); added {
				t.Fatal("second AddLabel must report false")
			}

			if err := st.AddCustomReminder(ctx, "aaaa", reminder.CustomReminder{ID: "r1", FireAt: t0.Add(30 * time.Minute), CreatedBy: 1}); err != nil {
				t.Fatal(err)
			}
			if err := st.AddCustomReminder(ctx, "aaaa", reminder.CustomReminder{ID: "r2", FireAt: t0.Add(40 * time.Minute), CreatedBy: 1}); err != nil {
				t.Fatal(err)
			}
			if err := st.MarkCustomSent(ctx, "aaaa", "r1"); err != nil {
				t.Fatal(err)
			}
			if err := st.MarkCustomSent(ctx, "aaaa", "nope"); !errors.Is(err, reminder.ErrNotFound) {
				t.Fatalf("unknown reminder: %v", err)
			}

			newDeadline := t0.Add(5 * time.Hour)
			done := true
			err = st.UpdateItem(ctx, "aaaa", reminder.Patch{
				Anchor:      &newDeadline,
				ResetLabels: true,
				AddAssigned: []int64{7, 8, 7},
				Completed:   &done,
				CompletedAt: &t0,
			})
			if err != nil {
				t.Fatal(err)
			}

			got, err := st.GetItem(ctx, "aaaa")
			if err != nil {
				t.Fatal(err)
			}
			if !got.Task.Deadline.Equal(newDeadline) || !got.Completed || !got.CompletedAt.Equal(t0) {
				t.Fatalf("patched item = %+v", got)
			}
			if len(got.SentLabels) != 0 {
				t.Fatalf("labels = %v", got.SentLabels)
			}
			if len(got.Task.Assigned) != 2 || got.Task.Assigned[0] != 7 || got.Task.Assigned[1] != 8 {
				t.Fatalf("assigned = %v", got.Task.Assigned)
			}
			if len(got.CustomReminders) != 2 || !got.CustomReminders[0].Sent || got.CustomReminders[1].Sent {
				t.Fatalf("custom = %+v", got.CustomReminders)
			}
			if !got.CreatedAt.Equal(t0) {
				t.Fatalf("created = %v", got.CreatedAt)
			}

			gotEv, err := st.GetItem(ctx, "eeee")
			if err != nil || gotEv.Kind() != reminder.KindEvent || !gotEv.Event.End.Equal(t0.Add(3*time.Hour)) {
				t.Fatalf("event = %+v, %v", gotEv, err)
			}

			if err := st.DeleteItem(ctx, "aaaa"); err != nil {
				t.Fatal(err)
			}
			if _, err := st.GetItem(ctx, "aaaa"); !errors.Is(err, reminder.ErrNotFound) {
				t.Fatalf("deleted get: %v", err)
			}
			if err := st.DeleteItem(ctx, "aaaa"); !errors.Is(err, reminder.ErrNotFound) {
				t.Fatalf("double delete: %v", err)
			}
			if _, err := st.AddLabel(ctx, "aaaa", "due"); !errors.Is(err, reminder.ErrNotFound) {
				t.Fatalf("label on deleted: %v", err)
			}
		})
	}
}

func TestSettingsConformance(t *testing.T) {
	t.Parallel()

	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openStore(t, cfg)

			us, err := st.GetUserSettings(ctx, 42)
			if err != nil || us.Timezone != "" {
				t.Fatalf("unknown user: %+v %v", us, err)
			}
			if err := st.PutUserTimezone(ctx, 42, "Asia/Makassar"); err != nil {
				t.Fatal(err)
			}
			if err := st.PutUserTimezone(ctx, 42, "UTC"); err != nil {
				t.Fatal(err)
			}
			if us, _ = st.GetUserSettings(ctx, 42); us.Timezone != "UTC" {
				t.Fatalf("tz = %q", us.Timezone)
			}

			g, err := st.GetGuildSettings(ctx, 9)
			if err != nil || !g.TaskTarget.IsZero() || !g.EventTarget.IsZero() {
				t.Fatalf("unknown scope: %+v %v", g, err)
			}
			if err := st.PutGuildTarget(ctx, 9, reminder.KindEvent, kit.ChatTarget{ChatID: -100, ThreadID: 4}); err != nil {
				t.Fatal(err)
			}
			if err := st.PutGuildTarget(ctx, 9, reminder.KindTask, kit.ChatTarget{ChatID: -200}); err != nil {
				t.Fatal(err)
			}
			g, _ = st.GetGuildSettings(ctx, 9)
			if g.Target(reminder.KindEvent) != (kit.ChatTarget{ChatID: -100, ThreadID: 4}) || g.Target(reminder.KindTask).ChatID != -200 {
				t.Fatalf("guild = %+v", g)
			}
		})
	}
}

func TestFileStoreReopens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "nested", "items.json")}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	it := task("aaaa", 1, 9, t0.Add(time.Hour))
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddLabel(ctx, "aaaa", "due"); err != nil {
		t.Fatal(err)
	}
	if err := st.PutUserTimezone(ctx, 1, "UTC"); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.GetItem(ctx, "aaaa")
	if err != nil || !got.HasLabel("due") {
		t.Fatalf("reopened: %+v %v", got, err)
	}
	if us, _ := st.GetUserSettings(ctx, 1); us.Timezone != "UTC" {
		t.Fatalf("tz = %q", us.Timezone)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
}

func ids(items []reminder.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

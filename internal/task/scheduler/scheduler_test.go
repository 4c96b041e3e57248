package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "weekly cron", raw: "0 20 * * 0", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@every 1m", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "1m", kind: SpecInterval, source: "duration", duration: time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:00", "-1m", "01:75", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Errorf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestAddRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, nil, logx.Nop())
	if err := s.AddSchedule("weekly", "61 25 * * *", time.Minute, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected cron parse error")
	}
	if err := s.AddSchedule("weekly", "0 20 * * 0", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("weekly", "0 21 * * 0", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 21 * * 0" {
		t.Fatalf("re-adding a name must replace it: %+v", snap.Schedules)
	}
	if !s.Remove("weekly") || s.Remove("weekly") {
		t.Fatal("Remove should report existence once")
	}
}

func TestTriggerRunsThroughEngine(t *testing.T) {
	t.Parallel()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	defer eng.Stop(context.Background())

	s := New(Config{Enabled: true, Timezone: "Asia/Jakarta"}, eng, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	ran := make(chan struct{}, 1)
	var calls atomic.Int32
	if err := s.AddInterval("sweep", time.Hour, time.Second, func(context.Context) error {
		calls.Add(1)
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Trigger("sweep"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered job did not run")
	}
	if snap := s.Snapshot(); snap.Timezone != "Asia/Jakarta" || !snap.Running || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
	if err := s.Trigger("missing"); err == nil {
		t.Fatal("unknown schedule should fail")
	}
}

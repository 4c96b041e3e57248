package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// 2025-01-10 10:00 WIB.
var fixedNow = time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	mu   sync.Mutex
	rich []kit.Rich
	menu []kit.BotCommand
}

func (a *fakeAdapter) Name() string                                  { return "fake" }
func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                    { return nil }
func (a *fakeAdapter) Mention(id int64) string                       { return fmt.Sprintf("<@%d>", id) }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	return a.SendRich(context.Background(), to, kit.Rich{Body: text})
}

func (a *fakeAdapter) SendRich(_ context.Context, to kit.ChatTarget, msg kit.Rich) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rich = append(a.rich, msg)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = cmds
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rich)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const baseConfig = `{
  "transport": {"platform": "telegram"},
  "logging": {"level": "error"},
  "storage": {"driver": "memory"},
  "weekly_summary": {"enabled": false}
}`

func newTestApp(t *testing.T, now func() time.Time) (*App, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{}
	a, err := New(writeConfig(t, baseConfig), WithAdapter(ad), WithStore(storage.NewMemory()), WithClock(now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, ad
}

func TestSweepOnceDeliversThenStaysQuiet(t *testing.T) {
	t.Parallel()
	a, ad := newTestApp(t, func() time.Time { return fixedNow })
	defer a.Close()
	ctx := context.Background()

	stop := a.startWorkers(ctx)
	if err := a.Service().SetChannel(ctx, -100, reminder.KindTask, kit.ChatTarget{ChatID: -100}); err != nil {
		t.Fatal(err)
	}
	// Five hours out in WIB: exactly on the 5h threshold.
	if _, err := a.Service().AddTask(ctx, reminder.NewTaskInput{Owner: 7, Scope: -100, Title: "Laporan", Deadline: "2025-01-10 15:00"}); err != nil {
		t.Fatal(err)
	}
	stop()

	res, err := a.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 {
		t.Fatalf("first sweep sent %d, want 1 (%s)", res.Sent, res)
	}
	res, _ = a.SweepOnce(ctx)
	if res.Sent != 0 {
		t.Fatalf("second sweep sent %d, want 0", res.Sent)
	}
	if ad.count() != 1 {
		t.Fatalf("adapter got %d messages", ad.count())
	}
}

func TestStartDispatchesCommands(t *testing.T) {
	t.Parallel()
	a, ad := newTestApp(t, time.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 5, FromID: 7, Text: "/ping"}}

	deadline := time.Now().Add(3 * time.Second)
	for ad.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ad.count() == 0 {
		t.Fatal("no reply to /ping")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done still open after Stop")
	}
}

func TestApplyConfigUpdatesPolicyAndSchedules(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, func() time.Time { return fixedNow })
	defer a.Close()

	prev := a.Config()
	next := *prev
	next.Reminders.DefaultTimezone = "Asia/Makassar"
	next.Reminders.ThresholdsHours = []int{48, 2}
	enabled := true
	next.WeeklySummary.Enabled = &enabled

	a.applyConfig(context.Background(), prev, &next)

	if got := a.Service().DefaultTimezone(); got != "Asia/Makassar" {
		t.Fatalf("default tz = %q", got)
	}
	snap := a.Scheduler().Snapshot()
	names := map[string]bool{}
	for _, s := range snap.Schedules {
		names[s.Name] = true
	}
	if !names[JobSweep] || !names[JobWeekly] {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}

	next2 := next
	disabled := false
	next2.WeeklySummary.Enabled = &disabled
	a.applyConfig(context.Background(), &next, &next2)
	for _, s := range a.Scheduler().Snapshot().Schedules {
		if s.Name == JobWeekly {
			t.Fatal("weekly schedule survived disable")
		}
	}
}

func TestMapEngine(t *testing.T) {
	t.Parallel()
	off := false
	cases := []struct {
		name    string
		in      *config.TaskEngineConfig
		workers int
		enabled bool
		wantErr bool
	}{
		{"defaults", nil, 4, true, false},
		{"one worker raised", &config.TaskEngineConfig{Workers: 1}, minWorkers, true, false},
		{"explicit", &config.TaskEngineConfig{Workers: 8}, 8, true, false},
		{"disabled", &config.TaskEngineConfig{Enabled: &off}, 4, false, false},
		{"bad timeout", &config.TaskEngineConfig{DefaultTimeout: "soon"}, 0, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mapEngine(&config.Config{TaskEngine: tc.in})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tc.wantErr {
				return
			}
			if got.Workers != tc.workers || got.Enabled != tc.enabled {
				t.Fatalf("got workers=%d enabled=%v", got.Workers, got.Enabled)
			}
			if !got.RetryIf(fmt.Errorf("x: %w", reminder.ErrStoreUnavailable)) || got.RetryIf(reminder.ErrNotFound) {
				t.Fatal("RetryIf must only accept store outages")
			}
		})
	}
}

// The sweep and the weekly job can fire together (Sunday evening). Both hold
// a worker while waiting on their own store calls, so the smallest pool
// must still have a worker left for those calls.
func TestSmallestPoolRunsBothJobsWithNestedStoreCalls(t *testing.T) {
	t.Parallel()
	cfg, err := mapEngine(&config.Config{TaskEngine: &config.TaskEngineConfig{Workers: 1}})
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(cfg, logx.Nop(), eventbus.New())
	eng.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	}()

	var holding sync.WaitGroup
	holding.Add(2)
	results := make(chan error, 2)
	for _, name := range []string{JobSweep, JobWeekly} {
		name := name
		err := eng.Enqueue(engine.Task{Name: name, Timeout: 2 * time.Second, Run: func(ctx context.Context) error {
			holding.Done()
			holding.Wait()
			err := eng.Do(ctx, name+".load", func(context.Context) error { return nil })
			results <- err
			return err
		}})
		if err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("nested store call: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("nested store call never ran")
		}
	}
}

func TestMapPolicyAndStorage(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Reminders: config.RemindersConfig{
		ThresholdsHours: []int{5, 72, 24, 5},
		Tolerance:       "2m",
	}}
	p, err := mapPolicy(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(p.Thresholds) != "[72 24 5]" || p.Tolerance != 2*time.Minute || p.ExpireAfter != 24*time.Hour {
		t.Fatalf("policy = %+v", p)
	}

	if _, err := mapStorage(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	sc, err := mapStorage(&config.Config{Storage: &config.StorageConfig{Driver: "file", Path: "x.json", BusyTimeout: "2s"}})
	if err != nil || sc.Driver != "file" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("storage = %+v, %v", sc, err)
	}
}

func TestMapLoggingNeedsOpsChat(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Logging: config.LoggingConfig{Ops: config.LoggingOps{Enabled: true}}}
	if mapLogging(cfg).Ops.Enabled {
		t.Fatal("ops sink enabled without a chat")
	}
	cfg.Transport.OpsChat = config.ChatRef{ChatID: -42, ThreadID: 3}
	got := mapLogging(cfg).Ops
	if !got.Enabled || got.ChatID != -42 || got.ThreadID != 3 {
		t.Fatalf("ops = %+v", got)
	}
}

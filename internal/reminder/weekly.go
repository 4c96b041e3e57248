package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Window returns the most recently completed Monday 00:00 to Saturday
// 23:59:59 in loc, as UTC. On Monday to Saturday that is the previous week;
// on Sunday it is the week that just ended.
func Window(now time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	back := 6 // Sunday
	if wd := local.Weekday(); wd != time.Sunday {
		back = int(wd) - 1 + 7
	}
	monday := time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, loc)
	saturday := time.Date(monday.Year(), monday.Month(), monday.Day()+5, 23, 59, 59, 0, loc)
	return monday.UTC(), saturday.UTC()
}

// ScopeSummary is one scope's completion statistics for a window.
type ScopeSummary struct {
	Scope        int64
	WindowStart  time.Time
	WindowEnd    time.Time
	Total        int
	Completed    int
	Rate         float64 // percent
	Contributors int
	Top          []Item
}

// Summarize groups tasks by scope, skipping unscoped ones. Results are
// ordered by scope.
func Summarize(tasks []Item, start, end time.Time, topN int) []ScopeSummary {
	byScope := make(map[int64][]Item)
	for _, it := range tasks {
		if it.Scope == 0 || it.Task == nil {
			continue
		}
		byScope[it.Scope] = append(byScope[it.Scope], it)
	}

	out := make([]ScopeSummary, 0, len(byScope))
	for scope, items := range byScope {
		s := ScopeSummary{Scope: scope, WindowStart: start, WindowEnd: end, Total: len(items)}
		people := make(map[int64]struct{})
		for _, it := range items {
			if it.Completed {
				s.Completed++
			}
			people[it.Owner] = struct{}{}
		}
		s.Contributors = len(people)
		if s.Total > 0 {
			s.Rate = float64(s.Completed) / float64(s.Total) * 100
		}

		sorted := append([]Item(nil), items...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Completed != sorted[j].Completed {
				return sorted[i].Completed
			}
			return lessByAnchor(sorted[i], sorted[j])
		})
		if topN > 0 && len(sorted) > topN {
			sorted = sorted[:topN]
		}
		s.Top = sorted
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

// WeeklyResult reports one weekly run.
type WeeklyResult struct {
	Start, End time.Time
	Scopes     int
	Sent       int
	Skipped    int
	Failed     int
}

// WeeklyJob posts per-scope completion statistics.
type WeeklyJob struct {
	deps Deps
	log  logx.Logger

	mu   sync.RWMutex
	loc  *time.Location
	topN int
}

func NewWeeklyJob(deps Deps, loc *time.Location, topN int) *WeeklyJob {
	deps = deps.withDefaults()
	if loc == nil {
		loc = time.UTC
	}
	if topN <= 0 {
		topN = 5
	}
	return &WeeklyJob{
		deps: deps,
		log:  deps.Log.With(logx.String("comp", "weekly")),
		loc:  loc,
		topN: topN,
	}
}

func (j *WeeklyJob) Apply(loc *time.Location, topN int) {
	j.mu.Lock()
	if loc != nil {
		j.loc = loc
	}
	if topN > 0 {
		j.topN = topN
	}
	j.mu.Unlock()
}

// Run summarizes the window before now. A store failure is returned; a
// scope without a target or a failed send is logged and skipped.
func (j *WeeklyJob) Run(ctx context.Context) (WeeklyResult, error) {
	j.mu.RLock()
	loc, topN := j.loc, j.topN
	j.mu.RUnlock()

	start, end := Window(j.deps.Now(), loc)
	res := WeeklyResult{Start: start, End: end}
	j.log.Info("weekly summary window", logx.Time("start", start), logx.Time("end", end))

	var tasks []Item
	err := j.deps.Pool.Do(ctx, "weekly.load", func(ctx context.Context) error {
		var err error
		tasks, err = j.deps.Store.FindItems(ctx, Filter{Kind: KindTask, AnchorFrom: start, AnchorTo: end})
		return err
	})
	if err != nil {
		j.deps.Metrics.PhaseFailure(KindTask)
		j.log.Error("weekly summary load failed", logx.Err(err))
		return res, err
	}

	sums := Summarize(tasks, start, end, topN)
	res.Scopes = len(sums)
	for _, s := range sums {
		log := j.log.With(logx.Int64("scope", s.Scope))
		target, ok := j.deps.Sink.ResolveTarget(ctx, s.Scope, KindTask)
		if !ok {
			res.Skipped++
			log.Warn("no channel for weekly summary; skipped")
			continue
		}
		msg := RenderWeekly(s, loc)
		if err := j.deps.Sink.Send(ctx, target, nil, msg); err != nil {
			res.Failed++
			log.Warn("weekly summary delivery failed", logx.Err(err))
			continue
		}
		res.Sent++
		log.Info("weekly summary sent", logx.Int("tasks", s.Total), logx.Int("completed", s.Completed))
	}
	j.deps.Metrics.WeeklySummaries(res.Sent, res.Skipped+res.Failed)
	return res, nil
}

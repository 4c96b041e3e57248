package reminder

import (
	"fmt"
	"slices"
	"time"
)

// Policy controls when notices fire. The sweep interval must stay within
// twice the tolerance or thresholds can be skipped between ticks.
type Policy struct {
	// Thresholds are lead times in hours, kept in descending order.
	Thresholds  []int
	Tolerance   time.Duration
	ExpireAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Thresholds:  []int{72, 24, 5},
		Tolerance:   90 * time.Second,
		ExpireAfter: 24 * time.Hour,
	}
}

// Normalize sorts thresholds descending and drops duplicates and
// non-positive values.
func (p Policy) Normalize() Policy {
	out := make([]int, 0, len(p.Thresholds))
	for _, h := range p.Thresholds {
		if h > 0 && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b int) int { return b - a })
	p.Thresholds = out
	return p
}

func (p Policy) Validate(interval time.Duration) error {
	if p.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive")
	}
	if p.ExpireAfter <= 0 {
		return fmt.Errorf("expire_after must be positive")
	}
	if interval > 2*p.Tolerance {
		return fmt.Errorf("sweep interval %s exceeds twice the tolerance %s; thresholds could be missed", interval, p.Tolerance)
	}
	return nil
}

type NoticeKind int

const (
	NoticeThreshold NoticeKind = iota + 1
	NoticeDue
	NoticeCustom
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeThreshold:
		return "threshold"
	case NoticeDue:
		return "due"
	case NoticeCustom:
		return "custom"
	}
	return "unknown"
}

// Notice is one notification an item owes at the evaluated instant.
type Notice struct {
	Kind  NoticeKind
	Label string // threshold and due notices
	Hours int    // threshold notices

	Reminder CustomReminder // custom notices
}

// Decision is the result of evaluating one item at one instant.
type Decision struct {
	Notices []Notice
	Expire  bool
}

func (d Decision) Empty() bool { return len(d.Notices) == 0 && !d.Expire }

// Evaluate decides which notices item owes at now. It is pure: the caller
// delivers the notices, persists their labels and then honours Expire.
//
// Order is thresholds (descending), due, then custom reminders.
func Evaluate(it Item, now time.Time, p Policy) Decision {
	var d Decision
	anchor := it.Anchor()
	if anchor.IsZero() {
		return d
	}
	remaining := anchor.Sub(now)

	for _, h := range p.Thresholds {
		label := ThresholdLabel(h)
		if it.HasLabel(label) {
			continue
		}
		if absDur(remaining-time.Duration(h)*time.Hour) <= p.Tolerance {
			d.Notices = append(d.Notices, Notice{Kind: NoticeThreshold, Label: label, Hours: h})
		}
	}

	if remaining <= 0 && !it.HasLabel(LabelDue) {
		d.Notices = append(d.Notices, Notice{Kind: NoticeDue, Label: LabelDue})
	}

	for _, r := range it.CustomReminders {
		if r.Sent {
			continue
		}
		if absDur(now.Sub(r.FireAt)) <= p.Tolerance {
			d.Notices = append(d.Notices, Notice{Kind: NoticeCustom, Reminder: r})
		}
	}

	d.Expire = -remaining > p.ExpireAfter
	return d
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

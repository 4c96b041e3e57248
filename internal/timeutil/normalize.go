// Package timeutil converts between user wall-clock text, IANA zones and the
// canonical UTC instants kept in storage.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// WallClockLayout is the only accepted input form for absolute times.
const WallClockLayout = "2006-01-02 15:04"

var (
	ErrInvalidFormat   = errors.New("invalid time format")
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// LoadLocation resolves an IANA zone name. Empty and "Local" are rejected so
// the process zone never leaks into stored data.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
	}
	return loc, nil
}

// ParseWallClock parses "YYYY-MM-DD HH:MM" as wall-clock time in tz and
// returns the UTC instant.
func ParseWallClock(text, tz string) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	// Zone first: an unknown zone is the more useful error to surface.
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(WallClockLayout, text, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (pakai YYYY-MM-DD HH:MM)", ErrInvalidFormat, text)
	}
	return t.UTC(), nil
}

// ToCanonicalUTC converts t to the UTC instant it denotes. Naive input never
// reaches here as a time.Time: offset-less text is read as UTC by
// ParseStoredInstant.
func ToCanonicalUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	WallClockLayout,
}

// ParseStoredInstant reads a persisted instant. RFC 3339 values are
// converted; values without an offset are taken as UTC.
func ParseStoredInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty instant", ErrInvalidFormat)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ToCanonicalUTC(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

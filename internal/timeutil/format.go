package timeutil

import (
	"strconv"
	"strings"
	"time"
)

var (
	dayNames = [...]string{
		time.Sunday:    "Minggu",
		time.Monday:    "Senin",
		time.Tuesday:   "Selasa",
		time.Wednesday: "Rabu",
		time.Thursday:  "Kamis",
		time.Friday:    "Jumat",
		time.Saturday:  "Sabtu",
	}
	monthNames = [...]string{
		"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember",
	}
)

// PastToken is what HumanDuration renders for negative durations.
const PastToken = "sudah lewat"

// FormatForDisplay projects t into loc as "YYYY-MM-DD HH:MM". The output
// parses back with ParseWallClock in the same zone.
func FormatForDisplay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(WallClockLayout)
}

// FormatDate renders "Senin 30 Desember 2025".
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return dayNames[lt.Weekday()] + " " + strconv.Itoa(lt.Day()) + " " + monthNames[lt.Month()-1] + " " + strconv.Itoa(lt.Year())
}

// MonthName returns the Indonesian month name.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// FormatLong renders "Senin 30 Desember 2025 14:00 WIB".
func FormatLong(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return FormatDate(t, loc) + " " + lt.Format("15:04 MST")
}

// HumanDuration renders d as "2d 5h 30m". Zero days and hours are dropped;
// minutes always show.
func HumanDuration(d time.Duration) string {
	if d < 0 {
		return PastToken
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"h")
	}
	parts = append(parts, strconv.FormatInt(minutes, 10)+"m")
	return strings.Join(parts, " ")
}

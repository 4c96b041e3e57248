package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
)

// Embed colours.
const (
	ColorDarkRed = 0x992D22
	ColorRed     = 0xE74C3C
	ColorOrange  = 0xE67E22
	ColorGold    = 0xF1C40F
	ColorBlue    = 0x3498DB
	ColorGreen   = 0x57F287
)

const noDescription = "_Tidak ada deskripsi_"

// Urgency returns the emoji, title and colour of a standard notice.
func Urgency(kind Kind, n Notice) (emoji, title string, color int) {
	switch {
	case n.Kind == NoticeCustom:
		return "🔔", "Custom Reminder!", ColorBlue
	case n.Kind == NoticeDue:
		if kind == KindEvent {
			return "🚨", "EVENT DIMULAI!", ColorDarkRed
		}
		return "🚨", "DEADLINE TERCAPAI!", ColorDarkRed
	case n.Hours <= 5:
		return "⚠️", "Reminder " + strconv.Itoa(n.Hours) + " Jam!", ColorRed
	case n.Hours <= 24:
		return "⏰", "Reminder " + strconv.Itoa(n.Hours) + " Jam!", ColorOrange
	}
	return "📢", "Reminder " + strconv.Itoa(n.Hours) + " Jam!", ColorGold
}

// ListEmoji marks how close an anchor is in list views.
func ListEmoji(remaining time.Duration) string {
	switch {
	case remaining < 24*time.Hour:
		return "🔴"
	case remaining < 72*time.Hour:
		return "🟡"
	}
	return "🟢"
}

func TagLabel(t Tag) string {
	if t == TagGroup {
		return "👥 Kelompok"
	}
	return "👤 Individu"
}

// RenderNotice builds the message for one notice. loc is the owner's zone.
func RenderNotice(it Item, n Notice, now time.Time, loc *time.Location) kit.Rich {
	kind := it.Kind()
	emoji, title, color := Urgency(kind, n)
	anchor := it.Anchor()

	msg := kit.Rich{
		Title: emoji + " " + title,
		Body:  bodyOf(it),
		Color: color,
	}
	anchorName := "📅 Deadline"
	doneCmd := "/done"
	if kind == KindEvent {
		anchorName = "📅 Tanggal Event"
		doneCmd = "/doneevent"
	}
	msg.Fields = append(msg.Fields,
		kit.RichField{Name: anchorName, Value: timeutil.FormatLong(anchor, loc)},
		kit.RichField{Name: "⏰ Waktu Tersisa", Value: timeutil.HumanDuration(anchor.Sub(now)), Inline: true},
	)
	if n.Kind == NoticeCustom {
		msg.Fields = append(msg.Fields, kit.RichField{
			Name:   "🔔 Reminder Diatur",
			Value:  timeutil.FormatLong(n.Reminder.FireAt, loc),
			Inline: true,
		})
	}
	if it.IsGroup() && len(it.Task.Assigned) > 0 {
		msg.Fields = append(msg.Fields, kit.RichField{
			Name:   "👥 Ditugaskan",
			Value:  strconv.Itoa(len(it.Task.Assigned)) + " orang",
			Inline: true,
		})
	}
	msg.Footer = "ID: " + ShortID(it.ID) + " • Gunakan " + doneCmd + " untuk menyelesaikan"
	msg.Mentions = it.Recipients()
	return msg
}

func bodyOf(it Item) string {
	desc := strings.TrimSpace(it.Description)
	if desc == "" {
		desc = noDescription
	}
	return "**" + it.Title + "**\n\n" + desc
}

// RenderWeekly builds one scope's weekly summary.
func RenderWeekly(s ScopeSummary, loc *time.Location) kit.Rich {
	start := s.WindowStart.In(loc)
	end := s.WindowEnd.In(loc)
	msg := kit.Rich{
		Title: "📊 Rekap Mingguan Tugas",
		Body: fmt.Sprintf("**Tugas dengan deadline %d %s - %s**",
			start.Day(), timeutil.MonthName(start.Month()), timeutil.FormatDate(end, loc)),
		Color: ColorBlue,
	}
	msg.Fields = append(msg.Fields, kit.RichField{
		Name: "📈 Statistik",
		Value: fmt.Sprintf("✅ **Selesai:** %d/%d\n📊 **Rate:** %.1f%%\n👥 **Kontributor:** %d orang",
			s.Completed, s.Total, s.Rate, s.Contributors),
	})
	lines := make([]string, 0, len(s.Top))
	for _, it := range s.Top {
		status := "❌"
		if it.Completed {
			status = "✅"
		}
		tagEmoji := "👤"
		if it.IsGroup() {
			tagEmoji = "👥"
		}
		lines = append(lines, fmt.Sprintf("%s %s **%s** (%s)", status, tagEmoji, it.Title, it.Anchor().In(loc).Format("02/01 15:04")))
	}
	if len(lines) == 0 {
		lines = append(lines, "_Tidak ada tugas_")
	}
	msg.Fields = append(msg.Fields, kit.RichField{Name: "📋 Daftar Tugas", Value: strings.Join(lines, "\n")})
	if s.Total > len(s.Top) {
		msg.Footer = fmt.Sprintf("Menampilkan %d dari %d tugas", len(s.Top), s.Total)
	}
	return msg
}

package commands

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/transport/router"
	logx "remindbot/pkg/logx"
)

// ExampleZones are suggested when a timezone is rejected.
var ExampleZones = []string{"Asia/Jakarta", "Asia/Makassar", "Asia/Jayapura", "UTC", "America/New_York"}

// ErrorReply answers a failed command with the Indonesian text for its error
// class. Unclassified errors get a generic reply and an error log.
func ErrorReply(ctx context.Context, req *router.Request, err error) {
	text, known := ErrorText(err)
	if !known {
		req.Logger.Error("command failed", logx.Err(err))
	}
	if sendErr := req.Reply(ctx, text); sendErr != nil {
		req.Logger.Warn("error reply failed", logx.Err(sendErr))
	}
}

// ErrorText maps err to user text. known is false for unclassified errors.
func ErrorText(err error) (text string, known bool) {
	var nf *reminder.NotFoundError
	switch {
	case errors.As(err, &nf):
		noun, list := "tugas", "/list"
		if nf.Kind == reminder.KindEvent {
			noun, list = "event", "/listevent"
		}
		return "❌ **" + capitalize(noun) + " Tidak Ditemukan**\n" +
			"Tidak dapat menemukan " + noun + " dengan identifier: `" + nf.Token + "`\n\n" +
			"💡 **Tips:**\n" +
			"• Gunakan `" + list + "` untuk melihat nomor atau ID " + noun + "\n" +
			"• ID cukup 8 karakter pertama\n" +
			"• Pastikan " + noun + " milik kamu dan belum selesai", true
	case errors.Is(err, reminder.ErrNotFound):
		return "❌ Item tidak ditemukan. Gunakan `/list` untuk melihat daftar.", true
	case errors.Is(err, reminder.ErrUnknownTimezone):
		return "❌ **Timezone Tidak Valid**\nTimezone " + detail(err, reminder.ErrUnknownTimezone, "itu") + " tidak dikenali." +
			"\n\nContoh timezone yang valid: `" + strings.Join(ExampleZones, "`, `") + "`", true
	case errors.Is(err, reminder.ErrPastDeadline):
		return "❌ Deadline tidak boleh di masa lalu.", true
	case errors.Is(err, reminder.ErrInvalidRange):
		return "❌ " + detail(err, reminder.ErrInvalidRange, "Rentang waktu tidak valid."), true
	case errors.Is(err, reminder.ErrInvalidFormat):
		return "❌ Format tidak valid: " + detail(err, reminder.ErrInvalidFormat, "gunakan `YYYY-MM-DD HH:MM`"), true
	case errors.Is(err, reminder.ErrStoreUnavailable):
		return "⚠️ Penyimpanan sedang bermasalah. Coba lagi sebentar lagi.", true
	case errors.Is(err, reminder.ErrDeliveryFailure):
		return "⚠️ Pesan gagal dikirim. Coba lagi sebentar lagi.", true
	case errors.Is(err, context.DeadlineExceeded):
		return "⏱️ Permintaan terlalu lama diproses. Coba lagi.", true
	}
	return "⚠️ Terjadi kesalahan internal. Coba lagi nanti.", false
}

// detail returns the text wrapped around class, e.g. "judul kosong" from
// "invalid time format: judul kosong".
func detail(err, class error, fallback string) string {
	msg := err.Error()
	if i := strings.Index(msg, class.Error()); i >= 0 {
		msg = msg[i+len(class.Error()):]
	}
	msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg), ":"))
	if msg == "" {
		return fallback
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

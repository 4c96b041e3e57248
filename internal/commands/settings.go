package commands

import (
	"context"
	"fmt"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/router"
)

func (h *Handlers) cmdSetTimezone(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, usage("/settimezone <IANA, mis. Asia/Jakarta>"))
	}
	name, err := h.svc.SetTimezone(ctx, req.FromID, req.Args[0])
	if err != nil {
		return err
	}
	loc, err := timeutil.LoadLocation(name)
	if err != nil {
		return err
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title: "🌐 Timezone Berhasil Diatur",
		Body:  "Timezone kamu sekarang: **" + name + "**\n\nSemua waktu deadline akan ditampilkan dalam timezone ini.",
		Color: reminder.ColorBlue,
		Fields: []kit.RichField{
			{Name: "🕐 Waktu Sekarang", Value: timeutil.FormatLong(h.now(), loc)},
		},
		Footer: "Diatur oleh " + displayName(req),
	})
}

func (h *Handlers) cmdTimezone(ctx context.Context, req *router.Request) error {
	name, loc, err := h.svc.Timezone(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title: "🌐 Timezone Kamu",
		Body:  "**" + name + "**",
		Color: reminder.ColorBlue,
		Fields: []kit.RichField{
			{Name: "🕐 Waktu Sekarang", Value: timeutil.FormatLong(h.now(), loc)},
		},
		Footer: "Default: " + h.svc.DefaultTimezone() + " • Gunakan /settimezone untuk mengganti",
	})
}

func parseKind(s string) (reminder.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "task", "tugas":
		return reminder.KindTask, true
	case "event", "acara":
		return reminder.KindEvent, true
	}
	return "", false
}

func (h *Handlers) cmdSetChannel(ctx context.Context, req *router.Request) error {
	raw := ""
	if len(req.Args) > 0 {
		raw = req.Args[0]
	}
	kind, ok := parseKind(raw)
	if !ok {
		return fmt.Errorf("%w: jenis harus task atau event", reminder.ErrInvalidFormat)
	}
	if req.Scope == 0 {
		return req.Reply(ctx, "Perintah ini hanya bisa dipakai di dalam grup.")
	}
	if err := h.svc.SetChannel(ctx, req.Scope, kind, req.Chat); err != nil {
		return err
	}

	label := "📋 Task (Tugas)"
	if kind == reminder.KindEvent {
		label = "📅 Event (Acara)"
	}
	where := "chat ini"
	if req.Chat.ThreadID != 0 {
		where = fmt.Sprintf("topik #%d di chat ini", req.Chat.ThreadID)
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title: "📢 Channel Reminder Diatur",
		Body:  "Channel untuk reminder **" + label + "** berhasil diatur",
		Color: reminder.ColorGreen,
		Fields: []kit.RichField{
			{Name: "🏷️ Tipe", Value: label, Inline: true},
			{Name: "📍 Channel", Value: where, Inline: true},
		},
		Footer: "Diatur oleh " + displayName(req),
	})
}

func (h *Handlers) cmdPing(ctx context.Context, req *router.Request) error {
	st, err := h.svc.Stats(ctx, req.FromID, req.Scope)
	if err != nil {
		return err
	}
	fields := []kit.RichField{
		{Name: "⏱️ Uptime", Value: timeutil.HumanDuration(h.now().Sub(h.started)), Inline: true},
		{Name: "📋 Tugas Aktif", Value: fmt.Sprint(st.OpenTasks), Inline: true},
		{Name: "📅 Event Aktif", Value: fmt.Sprint(st.OpenEvents), Inline: true},
	}
	if h.platform != "" {
		fields = append(fields, kit.RichField{Name: "🔌 Platform", Value: h.platform, Inline: true})
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title:  "🏓 Pong!",
		Body:   "**Status:** 🟢 Online",
		Color:  reminder.ColorGreen,
		Fields: fields,
		Footer: "Requested by " + displayName(req),
	})
}

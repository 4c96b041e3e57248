package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/router"
	logx "remindbot/pkg/logx"
)

func usage(u string) string { return "ℹ️ Penggunaan: `" + u + "`" }

func (h *Handlers) userLoc(ctx context.Context, user int64) (*time.Location, error) {
	_, loc, err := h.svc.Timezone(ctx, user)
	return loc, err
}

func (h *Handlers) cmdAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, usage(`/add "judul" YYYY-MM-DD HH:MM [deskripsi] [--tag individu|kelompok]`))
	}
	deadline, rest, _ := takeWallClock(req.Args[1:])
	desc := strings.Join(rest, " ")
	if v, ok := req.Flag("deskripsi", "desc"); ok {
		desc = v
	}
	tag := reminder.TagIndividual
	if v, ok := req.Flag("tag"); ok {
		t, valid := reminder.ParseTag(v)
		if !valid {
			return fmt.Errorf("%w: tag harus individu atau kelompok", reminder.ErrInvalidFormat)
		}
		tag = t
	} else if req.Bool("kelompok") {
		tag = reminder.TagGroup
	}

	it, err := h.svc.AddTask(ctx, reminder.NewTaskInput{
		Owner:       req.FromID,
		Scope:       req.Scope,
		Title:       req.Args[0],
		Deadline:    deadline,
		Description: desc,
		Tag:         tag,
	})
	if err != nil {
		return err
	}
	loc, err := h.userLoc(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title: "✅ Tugas Berhasil Ditambahkan",
		Body:  itemBody(it),
		Color: reminder.ColorGreen,
		Fields: []kit.RichField{
			{Name: "🆔 ID", Value: "`" + reminder.ShortID(it.ID) + "`", Inline: true},
			{Name: "🏷️ Tag", Value: reminder.TagLabel(it.Task.Tag), Inline: true},
			{Name: "📅 Deadline", Value: timeutil.FormatLong(it.Task.Deadline, loc)},
			{Name: "⏰ Waktu Tersisa", Value: timeutil.HumanDuration(it.Task.Deadline.Sub(h.now())), Inline: true},
			{Name: "👤 Dibuat Oleh", Value: displayName(req), Inline: true},
		},
	})
}

func (h *Handlers) cmdAddEvent(ctx context.Context, req *router.Request) error {
	const u = `/addevent "judul" "YYYY-MM-DD HH:MM" "YYYY-MM-DD HH:MM" [deskripsi]`
	if len(req.Args) < 3 {
		return req.Reply(ctx, usage(u))
	}
	start, rest, _ := takeWallClock(req.Args[1:])
	end, rest, ok := takeWallClock(rest)
	if !ok {
		return req.Reply(ctx, usage(u))
	}
	desc := strings.Join(rest, " ")
	if v, ok := req.Flag("deskripsi", "desc"); ok {
		desc = v
	}

	it, err := h.svc.AddEvent(ctx, reminder.NewEventInput{
		Owner:       req.FromID,
		Scope:       req.Scope,
		Title:       req.Args[0],
		Start:       start,
		End:         end,
		Description: desc,
	})
	if err != nil {
		return err
	}
	loc, err := h.userLoc(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.ReplyRich(ctx, kit.Rich{
		Title: "📅 Event Berhasil Ditambahkan",
		Body:  itemBody(it),
		Color: reminder.ColorBlue,
		Fields: []kit.RichField{
			{Name: "🆔 ID", Value: "`" + reminder.ShortID(it.ID) + "`", Inline: true},
			{Name: "🕐 Mulai", Value: timeutil.FormatLong(it.Event.Start, loc)},
			{Name: "🏁 Selesai", Value: timeutil.FormatLong(it.Event.End, loc)},
			{Name: "⏱️ Durasi", Value: timeutil.HumanDuration(it.Event.End.Sub(it.Event.Start)), Inline: true},
			{Name: "⏰ Dimulai Dalam", Value: timeutil.HumanDuration(it.Event.Start.Sub(h.now())), Inline: true},
		},
	})
}

func (h *Handlers) listHandler(kind reminder.Kind) router.HandlerFunc {
	noun, cmd, addCmd := "Tugas", "/list", "/add"
	if kind == reminder.KindEvent {
		noun, cmd, addCmd = "Event", "/listevent", "/addevent"
	}
	return func(ctx context.Context, req *router.Request) error {
		items, err := h.svc.ListOpen(ctx, req.FromID, req.Scope, kind)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return req.ReplyRich(ctx, kit.Rich{
				Title: "📝 Daftar " + noun,
				Body:  "✨ Tidak ada " + strings.ToLower(noun) + " aktif!\nGunakan `" + addCmd + "` untuk membuat " + strings.ToLower(noun) + ".",
			})
		}
		loc, err := h.userLoc(ctx, req.FromID)
		if err != nil {
			return err
		}

		now := h.now()
		from, to, page, pages := paginate(len(items), pageArg(req.Args, req.Flags))
		msg := kit.Rich{
			Title: "📋 Daftar " + noun,
			Body:  fmt.Sprintf("Total: **%d** %s aktif", len(items), strings.ToLower(noun)),
			Color: reminder.ColorBlue,
		}
		// Numbers run across pages so they stay valid for /done and /edit.
		for i := from; i < to; i++ {
			msg.Fields = append(msg.Fields, listField(items[i], i+1, now, loc))
		}
		if pages > 1 {
			msg.Footer = fmt.Sprintf("Halaman %d/%d • %s <halaman> untuk pindah halaman", page, pages, cmd)
		}
		return req.ReplyRich(ctx, msg)
	}
}

func listField(it reminder.Item, n int, now time.Time, loc *time.Location) kit.RichField {
	anchor := it.Anchor()
	remaining := anchor.Sub(now)
	name := fmt.Sprintf("%s %d. %s", reminder.ListEmoji(remaining), n, it.Title)

	var lines []string
	lines = append(lines, descOf(it))
	if it.Task != nil {
		name += " " + tagEmoji(it.Task.Tag)
		if len(it.Task.Assigned) > 0 {
			lines = append(lines, "👥 **Assigned:** "+strconv.Itoa(len(it.Task.Assigned))+" orang")
		}
		lines = append(lines, "📅 **Deadline:** "+timeutil.FormatLong(anchor, loc))
	} else {
		lines = append(lines,
			"🕐 **Mulai:** "+timeutil.FormatLong(anchor, loc),
			"🏁 **Selesai:** "+timeutil.FormatLong(it.Event.End, loc),
		)
	}
	lines = append(lines,
		"⏰ **Tersisa:** "+timeutil.HumanDuration(remaining),
		"🆔 `"+reminder.ShortID(it.ID)+"`",
	)
	return kit.RichField{Name: name, Value: strings.Join(lines, "\n")}
}

func (h *Handlers) cmdListGroup(ctx context.Context, req *router.Request) error {
	if req.Scope == 0 {
		return req.Reply(ctx, "Perintah ini hanya bisa dipakai di dalam grup.")
	}
	items, err := h.svc.ListGroupTasks(ctx, req.Scope)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return req.ReplyRich(ctx, kit.Rich{
			Title: "👥 Tugas Kelompok",
			Body:  "✨ Belum ada tugas kelompok aktif.\nGunakan `/add ... --tag kelompok` untuk membuatnya.",
		})
	}
	loc, err := h.userLoc(ctx, req.FromID)
	if err != nil {
		return err
	}

	now := h.now()
	msg := kit.Rich{
		Title: "👥 Tugas Kelompok",
		Body:  fmt.Sprintf("Total: **%d** tugas kelompok aktif", len(items)),
		Color: reminder.ColorBlue,
	}
	shown := items[:min(len(items), 25)]
	for _, it := range shown {
		remaining := it.Task.Deadline.Sub(now)
		assigned := "_belum ada_"
		if n := len(it.Task.Assigned); n > 0 {
			assigned = strconv.Itoa(n) + " orang"
		}
		msg.Fields = append(msg.Fields, kit.RichField{
			Name: reminder.ListEmoji(remaining) + " " + it.Title,
			Value: strings.Join([]string{
				"👤 **Owner:** `" + strconv.FormatInt(it.Owner, 10) + "`",
				"📋 **Assigned:** " + assigned,
				"📅 **Deadline:** " + timeutil.FormatLong(it.Task.Deadline, loc),
				"⏰ **Tersisa:** " + timeutil.HumanDuration(remaining),
				"🆔 `" + reminder.ShortID(it.ID) + "`",
			}, "\n"),
		})
	}
	if len(shown) < len(items) {
		msg.Footer = fmt.Sprintf("Menampilkan %d dari %d tugas", len(shown), len(items))
	}
	return req.ReplyRich(ctx, msg)
}

func (h *Handlers) cmdEdit(ctx context.Context, req *router.Request) error {
	kind, args := kindArgs(req)
	if len(args) < 1 {
		return req.Reply(ctx, usage(`/edit <no|id> [--judul ..] [--deadline "YYYY-MM-DD HH:MM"] [--deskripsi ..] [--tag ..]`))
	}

	var er reminder.EditRequest
	if v, ok := req.Flag("judul", "title"); ok {
		er.Title = &v
	}
	if v, ok := req.Flag("deskripsi", "desc"); ok {
		er.Description = &v
	}
	if v, ok := req.Flag("deadline", "mulai", "start"); ok {
		er.Due = &v
	}
	if v, ok := req.Flag("selesai", "end"); ok {
		er.End = &v
	}
	if v, ok := req.Flag("tag"); ok {
		t, valid := reminder.ParseTag(v)
		if !valid {
			return fmt.Errorf("%w: tag harus individu atau kelompok", reminder.ErrInvalidFormat)
		}
		er.Tag = &t
	}

	res, err := h.svc.Edit(ctx, req.FromID, req.Scope, kind, args[0], er)
	if err != nil {
		return err
	}
	loc, err := h.userLoc(ctx, req.FromID)
	if err != nil {
		return err
	}

	before, after := res.Before, res.After
	var changes []string
	if before.Title != after.Title {
		changes = append(changes, "**Judul:** "+before.Title+" → "+after.Title)
	}
	if !before.Anchor().Equal(after.Anchor()) {
		label := "Deadline"
		if kind == reminder.KindEvent {
			label = "Mulai"
		}
		changes = append(changes, "**"+label+":** "+timeutil.FormatForDisplay(before.Anchor(), loc)+" → "+timeutil.FormatForDisplay(after.Anchor(), loc))
	}
	if before.Event != nil && after.Event != nil && !before.Event.End.Equal(after.Event.End) {
		changes = append(changes, "**Selesai:** "+timeutil.FormatForDisplay(before.Event.End, loc)+" → "+timeutil.FormatForDisplay(after.Event.End, loc))
	}
	if before.Description != after.Description {
		changes = append(changes, "**Deskripsi:** diperbarui")
	}
	if before.Task != nil && after.Task != nil && before.Task.Tag != after.Task.Tag {
		changes = append(changes, "**Tag:** "+reminder.TagLabel(before.Task.Tag)+" → "+reminder.TagLabel(after.Task.Tag))
	}
	if len(changes) == 0 {
		changes = append(changes, "_Tidak ada perubahan nilai_")
	}

	title, anchorName := "✏️ Tugas Berhasil Diedit", "📅 Deadline Sekarang"
	if kind == reminder.KindEvent {
		title, anchorName = "✏️ Event Berhasil Diedit", "📅 Mulai Sekarang"
	}
	msg := kit.Rich{
		Title: title,
		Body:  "**" + after.Title + "**",
		Color: reminder.ColorGold,
		Fields: []kit.RichField{
			{Name: "📝 Perubahan", Value: strings.Join(changes, "\n")},
			{Name: anchorName, Value: timeutil.FormatLong(after.Anchor(), loc), Inline: true},
			{Name: "👤 Diedit Oleh", Value: displayName(req), Inline: true},
		},
	}
	if !before.Anchor().Equal(after.Anchor()) {
		msg.Footer = "🔄 Reminder dijadwalkan ulang untuk waktu yang baru"
	}
	return req.ReplyRich(ctx, msg)
}

func (h *Handlers) doneHandler(kind reminder.Kind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if len(req.Args) < 1 {
			if kind == reminder.KindEvent {
				return req.Reply(ctx, usage("/doneevent <no|id>"))
			}
			return req.Reply(ctx, usage("/done <no|id>"))
		}
		res, err := h.svc.Complete(ctx, req.FromID, req.Scope, kind, req.Args[0])
		if err != nil {
			return err
		}
		loc, err := h.userLoc(ctx, req.FromID)
		if err != nil {
			return err
		}
		return req.ReplyRich(ctx, completionMessage(res, loc, displayName(req)))
	}
}

func completionMessage(res reminder.CompleteResult, loc *time.Location, by string) kit.Rich {
	it := res.Item
	noun, anchorName := "Tugas", "📅 Deadline"
	if it.Kind() == reminder.KindEvent {
		noun, anchorName = "Event", "📅 Tanggal Event"
	}

	emoji, status, when := "🎉", "**Selesai Tepat Waktu!**", "sebelum deadline"
	color := reminder.ColorGreen
	lead := res.Lead
	if lead < 0 {
		emoji, status, when = "⏰", "**Selesai Terlambat**", "setelah deadline"
		color = reminder.ColorOrange
		lead = -lead
	}

	var fields []kit.RichField
	if it.Task != nil {
		fields = append(fields, kit.RichField{Name: "🏷️ Tag", Value: reminder.TagLabel(it.Task.Tag), Inline: true})
	}
	fields = append(fields, kit.RichField{Name: anchorName, Value: timeutil.FormatLong(it.Anchor(), loc)})
	if !it.CreatedAt.IsZero() && it.CompletedAt.After(it.CreatedAt) {
		fields = append(fields, kit.RichField{Name: "⏱️ Durasi " + noun, Value: timeutil.HumanDuration(it.CompletedAt.Sub(it.CreatedAt)), Inline: true})
	}
	fields = append(fields,
		kit.RichField{Name: "✅ Diselesaikan", Value: "Diselesaikan **" + timeutil.HumanDuration(lead) + "** " + when},
		kit.RichField{Name: "👤 Oleh", Value: by, Inline: true},
	)
	return kit.Rich{
		Title:  emoji + " " + noun + " Diselesaikan!",
		Body:   status + "\n\n**" + it.Title + "**\n" + descOf(it),
		Color:  color,
		Fields: fields,
		Footer: "ID: " + reminder.ShortID(it.ID),
	}
}

func (h *Handlers) cmdAssign(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, usage("/assign <no|id> <user...>"))
	}
	var mentions []int64
	if req.Message != nil {
		mentions = req.Message.MentionIDs
	}
	users := userIDs(mentions, req.Args[1:])

	it, added, err := h.svc.Assign(ctx, req.FromID, req.Scope, req.Args[0], users)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(it.Task.Assigned))
	for _, u := range it.Task.Assigned {
		ids = append(ids, "`"+strconv.FormatInt(u, 10)+"`")
	}
	body := "**" + it.Title + "**"
	if added == 0 {
		body += "\n_Semua user sudah di-assign sebelumnya._"
	}
	req.Logger.Info("task assigned", logx.String("item", reminder.ShortID(it.ID)), logx.Int("added", added))
	return req.ReplyRich(ctx, kit.Rich{
		Title: "👥 Tugas Berhasil Di-Assign",
		Body:  body,
		Color: reminder.ColorGreen,
		Fields: []kit.RichField{
			{Name: "📋 Assigned To", Value: strings.Join(ids, " ")},
			{Name: "🆔 ID", Value: "`" + reminder.ShortID(it.ID) + "`", Inline: true},
			{Name: "👤 Owner", Value: "`" + strconv.FormatInt(it.Owner, 10) + "`", Inline: true},
		},
		Footer:   "Assigned by " + displayName(req),
		Mentions: users,
	})
}

func (h *Handlers) cmdSetReminder(ctx context.Context, req *router.Request) error {
	kind, args := kindArgs(req)
	if len(args) < 2 {
		return req.Reply(ctx, usage(`/setreminder <no|id> <1d|3h|30m|"YYYY-MM-DD HH:MM"> [--event]`))
	}
	when := strings.Join(args[1:], " ")

	res, err := h.svc.SetReminder(ctx, req.FromID, req.Scope, kind, args[0], when)
	if err != nil {
		return err
	}
	loc, err := h.userLoc(ctx, req.FromID)
	if err != nil {
		return err
	}
	anchorName := "📅 Deadline"
	if kind == reminder.KindEvent {
		anchorName = "📅 Tanggal Event"
	}
	msg := kit.Rich{
		Title: "⏰ Reminder Berhasil Diatur",
		Body:  "**" + res.Item.Title + "**",
		Color: reminder.ColorBlue,
		Fields: []kit.RichField{
			{Name: "🔔 Reminder Waktu", Value: timeutil.FormatLong(res.Reminder.FireAt, loc)},
			{Name: "⏳ Dalam", Value: timeutil.HumanDuration(res.Reminder.FireAt.Sub(h.now())), Inline: true},
			{Name: anchorName, Value: timeutil.FormatLong(res.Item.Anchor(), loc)},
		},
	}
	if res.AfterAnchor {
		msg.Footer = "⚠️ Reminder ini berbunyi setelah deadline"
	}
	return req.ReplyRich(ctx, msg)
}

// kindArgs strips the --event switch from the raw arguments before taking
// positionals, so "--event 2 1h" does not read "2" as the switch's value.
func kindArgs(req *router.Request) (reminder.Kind, []string) {
	kind := reminder.KindTask
	rest := make([]string, 0, len(req.RawArgs))
	for _, a := range req.RawArgs {
		switch strings.ToLower(a) {
		case "--event", "-e", "--acara":
			kind = reminder.KindEvent
			continue
		}
		rest = append(rest, a)
	}
	pos, _, _ := router.ParseFlags(rest)
	return kind, pos
}

func itemBody(it reminder.Item) string {
	return "**" + it.Title + "**\n\n" + descOf(it)
}

func descOf(it reminder.Item) string {
	if d := strings.TrimSpace(it.Description); d != "" {
		return d
	}
	return "_Tidak ada deskripsi_"
}

func tagEmoji(t reminder.Tag) string {
	if t == reminder.TagGroup {
		return "👥"
	}
	return "👤"
}

func displayName(req *router.Request) string {
	if m := req.Message; m != nil {
		if m.FromName != "" {
			return m.FromName
		}
		if m.FromUsername != "" {
			return "@" + m.FromUsername
		}
	}
	return strconv.FormatInt(req.FromID, 10)
}

// Package commands implements the chat command set on top of the reminder
// service. Replies are Indonesian and use the router's markdown subset.
package commands

import (
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport/router"
	logx "remindbot/pkg/logx"
)

// PageSize is how many items a list page shows.
const PageSize = 5

type Config struct {
	// Platform is shown by /ping.
	Platform string
	Now      func() time.Time
}

// Handlers holds the command handlers. It is safe for concurrent use.
type Handlers struct {
	svc      *reminder.Service
	log      logx.Logger
	platform string
	now      func() time.Time
	started  time.Time
}

func New(svc *reminder.Service, cfg Config, log logx.Logger) *Handlers {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		svc:      svc,
		log:      log.With(logx.String("comp", "commands")),
		platform: cfg.Platform,
		now:      cfg.Now,
		started:  cfg.Now(),
	}
}

// Commands returns the registry handed to router.SetRegistry.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "add",
			Aliases:     []string{"tambah"},
			Description: "tambah tugas baru",
			Usage:       `/add "judul" YYYY-MM-DD HH:MM [deskripsi] [--tag individu|kelompok]`,
			Handle:      h.cmdAdd,
		},
		{
			Route:       "addevent",
			Description: "tambah event (rapat, meeting, dll)",
			Usage:       `/addevent "judul" "YYYY-MM-DD HH:MM" "YYYY-MM-DD HH:MM" [deskripsi]`,
			Handle:      h.cmdAddEvent,
		},
		{
			Route:       "list",
			Description: "daftar tugas yang belum selesai",
			Usage:       "/list [halaman]",
			Handle:      h.listHandler(reminder.KindTask),
		},
		{
			Route:       "listevent",
			Description: "daftar event yang belum selesai",
			Usage:       "/listevent [halaman]",
			Handle:      h.listHandler(reminder.KindEvent),
		},
		{
			Route:       "listkelompok",
			Description: "semua tugas kelompok di grup ini",
			Usage:       "/listkelompok",
			Handle:      h.cmdListGroup,
		},
		{
			Route:       "edit",
			Description: "ubah judul, deadline, deskripsi atau tag",
			Usage:       `/edit <no|id> [--judul ..] [--deadline "YYYY-MM-DD HH:MM"] [--deskripsi ..] [--tag ..] [--event --selesai ..]`,
			Handle:      h.cmdEdit,
		},
		{
			Route:       "done",
			Aliases:     []string{"selesai"},
			Description: "tandai tugas selesai",
			Usage:       "/done <no|id>",
			Handle:      h.doneHandler(reminder.KindTask),
		},
		{
			Route:       "doneevent",
			Description: "tandai event selesai",
			Usage:       "/doneevent <no|id>",
			Handle:      h.doneHandler(reminder.KindEvent),
		},
		{
			Route:       "assign",
			Description: "assign tugas ke user lain",
			Usage:       "/assign <no|id> <user...>",
			Handle:      h.cmdAssign,
		},
		{
			Route:       "setreminder",
			Description: "pasang reminder custom",
			Usage:       `/setreminder <no|id> <1d|3h|30m|"YYYY-MM-DD HH:MM"> [--event]`,
			Handle:      h.cmdSetReminder,
		},
		{
			Route:       "settimezone",
			Aliases:     []string{"settz"},
			Description: "atur timezone tampilan waktu",
			Usage:       "/settimezone <IANA, mis. Asia/Jakarta>",
			Handle:      h.cmdSetTimezone,
		},
		{
			Route:       "timezone",
			Aliases:     []string{"tz"},
			Description: "lihat timezone kamu",
			Usage:       "/timezone",
			Handle:      h.cmdTimezone,
		},
		{
			Route:       "setchannel",
			Description: "pakai chat ini untuk reminder grup",
			Usage:       "/setchannel task|event",
			Handle:      h.cmdSetChannel,
		},
		{
			Route:       "ping",
			Description: "cek status bot",
			Usage:       "/ping",
			Handle:      h.cmdPing,
		},
	}
}

package router

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{``, nil},
		{`/add tugas 2025-01-31 17:00`, []string{"/add", "tugas", "2025-01-31", "17:00"}},
		{`/add "Laporan akhir" '2025-01-31 17:00'`, []string{"/add", "Laporan akhir", "2025-01-31 17:00"}},
		{`/edit 1 --judul ""`, []string{"/edit", "1", "--judul", ""}},
		{`a\ b  c`, []string{"a b", "c"}},
		{"x\ty\nz", []string{"x", "y", "z"}},
	}
	for _, tc := range cases {
		if got := Tokenize(tc.in); !slices.Equal(got, tc.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := ParseFlags([]string{
		"1", "--judul", "Baru", "--deadline=2025-01-31 17:00", "--event", "-p", "2", "-xy", "-5",
	})
	if !slices.Equal(pos, []string{"1", "-5"}) {
		t.Fatalf("pos = %q", pos)
	}
	want := map[string]string{"judul": "Baru", "deadline": "2025-01-31 17:00", "p": "2"}
	for k, v := range want {
		if flags[k] != v {
			t.Errorf("flag %s = %q, want %q", k, flags[k], v)
		}
	}
	for _, k := range []string{"event", "x", "y"} {
		if !bools[k] {
			t.Errorf("bool %s not set", k)
		}
	}
}

func TestMenuName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"list":       "list",
		"set tz":     "set_tz",
		"Speed-Test": "speed_test",
		"9lives":     "cmd_9lives",
		"__":         "",
		"a!b":        "ab",
	}
	for in, want := range cases {
		if got := menuName(in); got != want {
			t.Errorf("menuName(%q) = %q, want %q", in, got, want)
		}
	}
}

func nop(context.Context, *Request) error { return nil }

func TestMatch(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), nil, nil, Options{})
	menu := r.SetRegistry([]Command{
		{Route: "list", Aliases: []string{"ls"}, Description: "daftar tugas", Handle: nop},
		{Route: "channel set", Description: "atur channel", Handle: nop},
	})

	cases := []struct {
		text  string
		route string
		args  []string
		ok    bool
	}{
		{"/list 2", "list", []string{"2"}, true},
		{"/LIST@remind_bot", "list", nil, true},
		{"/ls", "list", nil, true},
		{"!list", "list", nil, true},
		{"/channel set task", "channel set", []string{"task"}, true},
		{"/channel_set event", "channel set", []string{"event"}, true},
		{"/channel", "channel", nil, true},
		{"/nope", "", nil, false},
		{"hello", "", nil, false},
	}
	for _, tc := range cases {
		cmd, _, args, ok := r.Match(tc.text)
		if ok != tc.ok || cmd.Route != tc.route || !slices.Equal(args, tc.args) {
			t.Errorf("Match(%q) = %q %q %v", tc.text, cmd.Route, args, ok)
		}
	}

	var names []string
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if !slices.Equal(names, []string{"channel", "help", "list", "channel_set"}) {
		t.Fatalf("menu = %q", names)
	}
}

type recAdapter struct {
	mu    sync.Mutex
	texts []string
	sent  chan string
}

func newRecAdapter() *recAdapter { return &recAdapter{sent: make(chan string, 16)} }

func (a *recAdapter) Name() string                                  { return "rec" }
func (a *recAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *recAdapter) Stop(context.Context) error                     { return nil }
func (a *recAdapter) Mention(int64) string                           { return "" }
func (a *recAdapter) SendRich(context.Context, kit.ChatTarget, kit.Rich) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (a *recAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.texts = append(a.texts, text)
	a.mu.Unlock()
	a.sent <- text
	return kit.MessageRef{}, nil
}

func (a *recAdapter) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-a.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return ""
	}
}

func TestRunDispatchesAndRepliesErrors(t *testing.T) {
	t.Parallel()
	ad := newRecAdapter()
	r := New(logx.Nop(), ad, []int64{1}, Options{Workers: 2, DeniedText: "ditolak"})
	errBoom := errors.New("boom")
	r.SetRegistry([]Command{
		{Route: "echo", Handle: func(ctx context.Context, req *Request) error {
			v, _ := req.Flag("v")
			return req.Reply(ctx, req.Args[0]+"|"+v)
		}},
		{Route: "fail", Handle: func(context.Context, *Request) error { return errBoom }},
		{Route: "panic", Handle: func(context.Context, *Request) error { panic("x") }},
		{Route: "admin", Access: AccessOwnerOnly, Handle: nop},
	})
	var (
		mu   sync.Mutex
		errs []error
	)
	r.SetErrorReply(func(ctx context.Context, req *Request, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		_ = req.Reply(ctx, "error")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 4)
	done := make(chan struct{})
	go func() { _ = r.Run(ctx, updates); close(done) }()

	send := func(from int64, text string) {
		updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 9, FromID: from, Text: text}}
	}

	send(2, `/echo "a b" --v 1`)
	if got := ad.next(t); got != "a b|1" {
		t.Fatalf("echo = %q", got)
	}
	send(2, "/fail")
	if got := ad.next(t); got != "error" {
		t.Fatalf("fail reply = %q", got)
	}
	send(2, "/panic")
	if got := ad.next(t); got != "error" {
		t.Fatalf("panic reply = %q", got)
	}
	send(2, "/admin")
	if got := ad.next(t); got != "ditolak" {
		t.Fatalf("admin reply = %q", got)
	}

	mu.Lock()
	if len(errs) != 2 || !errors.Is(errs[0], errBoom) {
		t.Fatalf("errs = %v", errs)
	}
	mu.Unlock()

	cancel()
	<-done
}

func TestHelpText(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), nil, nil, Options{})
	r.SetRegistry([]Command{
		{Route: "list", Aliases: []string{"ls"}, Description: "daftar tugas", Usage: "/list [halaman]", Handle: nop},
		{Route: "secret", Access: AccessOwnerOnly, Description: "rahasia", Handle: nop},
	})
	top := r.helpText(nil)
	if li, si := strings.Index(top, "/list"), strings.Index(top, "/secret"); li < 0 || si < li {
		t.Fatalf("top help ordering:\n%s", top)
	}
	detail := r.helpText([]string{"ls"})
	if !strings.Contains(detail, "/list [halaman]") || !strings.Contains(detail, "`/ls`") {
		t.Fatalf("detail:\n%s", detail)
	}
}

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	var healthErr error
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "m 1\n") })
	s := New(Config{}, metrics, func(context.Context) error { return healthErr }, logx.Nop())

	h := s.Handler(Config{Token: "sekret"})
	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health open", "/healthz", "", http.StatusOK},
		{"metrics needs token", "/metrics", "", http.StatusUnauthorized},
		{"metrics bearer", "/metrics", "Bearer sekret", http.StatusOK},
		{"metrics query", "/metrics?token=sekret", "", http.StatusOK},
		{"metrics bad query", "/metrics?token=nope", "Bearer sekret", http.StatusUnauthorized},
		{"pprof off", "/debug/pprof/", "Bearer sekret", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: code = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}

	healthErr = errors.New("store down")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy code = %d", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.5:80":    false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	s := New(Config{}, nil, nil, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", MutexProfileFraction: -1, BlockProfileRate: -1})
	select {
	case <-s.Ready():
	case <-ctx.Done():
		t.Fatal("listener never came up")
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no bound address")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	s.Reconfigure(ctx, Config{Enabled: false, MutexProfileFraction: -1, BlockProfileRate: -1})
	if s.Addr() != "" {
		t.Fatalf("still bound to %s", s.Addr())
	}
}

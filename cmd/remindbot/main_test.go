package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCheckConfig(t *testing.T) {
	t.Parallel()
	good := writeFile(t, "config.json", `{
  "transport": {"platform": "telegram"},
  "storage": {"driver": "memory"},
  "weekly_summary": {"enabled": false}
}`)
	out, _, err := execRoot(t, "check-config", "-c", good)
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "ok (platform=telegram storage=memory") {
		t.Fatalf("out = %q", out)
	}

	bad := writeFile(t, "config.json", `{"transport": {"platform": "irc"}}`)
	_, errOut, err := execRoot(t, "check-config", "-c", bad)
	if err == nil {
		t.Fatal("bad platform accepted")
	}
	if !strings.Contains(errOut, "invalid") {
		t.Fatalf("stderr = %q", errOut)
	}
}

func TestImportDryRun(t *testing.T) {
	t.Parallel()
	docs := writeFile(t, "tasks.jsonl", strings.Join([]string{
		`{"_id": {"$oid": "665a1f00aa00bb00cc00dd01"}, "user_id": 1, "guild_id": 2, "judul": "A", "deadline": {"$date": "2025-06-02T09:00:00Z"}}`,
		`{"_id": {"$oid": "665a1f00aa00bb00cc00dd02"}, "user_id": 1, "guild_id": 2, "judul": "B", "deadline": {"$date": "2025-06-03T09:00:00Z"}}`,
	}, "\n"))

	out, _, err := execRoot(t, "import", "--kind", "task", "--dry-run", docs)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if strings.TrimSpace(out) != "decoded 2 task item(s)" {
		t.Fatalf("out = %q", out)
	}

	if _, _, err := execRoot(t, "import", "--kind", "note", docs); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

package reminder

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeLegacyTask(t *testing.T) {
	t.Parallel()

	raw := `{
		"_id": {"$oid": "665a1f00aa00bb00cc00dd00"},
		"user_id": {"$numberLong": "412345678901234567"},
		"guild_id": 998877665544332211,
		"judul": "Laporan praktikum",
		"deskripsi": null,
		"deadline": {"$date": "2025-06-02T09:00:00Z"},
		"status": false,
		"created_at": {"$date": {"$numberLong": "1748736000000"}},
		"reminders_sent": ["rem_72h", "rem_24h", "rem_72h", "rem_due"],
		"tag": "kelompok",
		"assigned_users": [111, "222", 111],
		"custom_reminders": [
			{"time": {"$date": "2025-06-01T20:00:00.000Z"}, "sent": true, "created_by": 111},
			{"time": "2025-06-02T07:00:00", "sent": false}
		]
	}`
	it, err := DecodeLegacy(KindTask, []byte(raw))
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}
	if it.ID != "665a1f00aa00bb00cc00dd00" || it.Kind() != KindTask {
		t.Fatalf("id/kind = %s/%s", it.ID, it.Kind())
	}
	if it.Owner != 412345678901234567 || it.Scope != 998877665544332211 {
		t.Fatalf("owner/scope = %d/%d", it.Owner, it.Scope)
	}
	if it.Task.Tag != TagGroup || len(it.Task.Assigned) != 2 {
		t.Fatalf("task = %+v", it.Task)
	}
	if !it.Task.Deadline.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("deadline = %v", it.Task.Deadline)
	}
	if !it.CreatedAt.Equal(time.UnixMilli(1748736000000)) {
		t.Fatalf("created = %v", it.CreatedAt)
	}
	wantLabels := []string{"threshold_72h", "threshold_24h", LabelDue}
	if strings.Join(it.SentLabels, ",") != strings.Join(wantLabels, ",") {
		t.Fatalf("labels = %v", it.SentLabels)
	}
	if len(it.CustomReminders) != 2 {
		t.Fatalf("custom = %+v", it.CustomReminders)
	}
	c0, c1 := it.CustomReminders[0], it.CustomReminders[1]
	if !c0.Sent || c0.CreatedBy != 111 || c1.Sent || c1.CreatedBy != it.Owner {
		t.Fatalf("custom = %+v", it.CustomReminders)
	}
	if c0.ID == "" || c0.ID == c1.ID {
		t.Fatal("each custom reminder needs its own id")
	}
	if !c1.FireAt.Equal(time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("naive custom time must be read as UTC: %v", c1.FireAt)
	}
}

func TestDecodeLegacyEventFallbacks(t *testing.T) {
	t.Parallel()

	raw := `{"_id":"abc123","user_id":5,"judul":"Rapat","tanggal":"2025-06-03T10:00:00+07:00","status":true,"completed_at":"2025-06-03T04:00:00Z"}`
	it, err := DecodeLegacy(KindEvent, []byte(raw))
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}
	start := time.Date(2025, 6, 3, 3, 0, 0, 0, time.UTC)
	if !it.Event.Start.Equal(start) || !it.Event.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("event = %+v", it.Event)
	}
	if !it.Completed || it.CompletedAt.IsZero() || it.Scope != 0 {
		t.Fatalf("item = %+v", it)
	}
	if !it.CreatedAt.Equal(start) {
		t.Fatalf("created should fall back to the anchor, got %v", it.CreatedAt)
	}
}

func TestDecodeLegacyRejectsMissingDeadline(t *testing.T) {
	t.Parallel()
	if _, err := DecodeLegacy(KindTask, []byte(`{"user_id":1,"judul":"x"}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeLegacyStream(t *testing.T) {
	t.Parallel()

	lines := `{"user_id":1,"judul":"a","deadline":"2025-06-02T09:00:00Z"}
{"user_id":2,"judul":"b","deadline":"2025-06-03T09:00:00Z"}
`
	items, err := DecodeLegacyStream(KindTask, strings.NewReader(lines))
	if err != nil || len(items) != 2 {
		t.Fatalf("lines: %d items, err %v", len(items), err)
	}

	arr := `[` + strings.ReplaceAll(strings.TrimSpace(lines), "\n", ",") + `]`
	items, err = DecodeLegacyStream(KindTask, strings.NewReader(arr))
	if err != nil || len(items) != 2 || items[1].Title != "b" {
		t.Fatalf("array: %+v, err %v", items, err)
	}

	items, err = DecodeLegacyStream(KindTask, strings.NewReader("  \n"))
	if err != nil || len(items) != 0 {
		t.Fatalf("empty: %+v, err %v", items, err)
	}
}

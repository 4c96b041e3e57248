package reminder

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/timeutil"
)

// legacyDoc is a document exported from the old document store
// (mongoexport, relaxed or canonical extended JSON).
type legacyDoc struct {
	ID              json.RawMessage   `json:"_id"`
	UserID          json.RawMessage   `json:"user_id"`
	GuildID         json.RawMessage   `json:"guild_id"`
	Judul           string            `json:"judul"`
	Deskripsi       *string           `json:"deskripsi"`
	Status          bool              `json:"status"`
	Tag             string            `json:"tag"`
	Deadline        json.RawMessage   `json:"deadline"`
	TanggalMulai    json.RawMessage   `json:"tanggal_mulai"`
	Tanggal         json.RawMessage   `json:"tanggal"`
	TanggalSelesai  json.RawMessage   `json:"tanggal_selesai"`
	CreatedAt       json.RawMessage   `json:"created_at"`
	CompletedAt     json.RawMessage   `json:"completed_at"`
	RemindersSent   []string          `json:"reminders_sent"`
	AssignedUsers   []json.RawMessage `json:"assigned_users"`
	CustomReminders []legacyCustom    `json:"custom_reminders"`
}

type legacyCustom struct {
	Time      json.RawMessage `json:"time"`
	Sent      bool            `json:"sent"`
	CreatedBy json.RawMessage `json:"created_by"`
}

// DecodeLegacy normalizes one legacy document into an Item. This is the only
// place old field names are understood.
func DecodeLegacy(kind Kind, raw []byte) (Item, error) {
	var d legacyDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return Item{}, fmt.Errorf("legacy %s: %w", kind, err)
	}

	var it Item
	var err error
	if it.ID, it.CreatedAt, err = decodeLegacyID(d.ID); err != nil {
		return Item{}, err
	}
	if it.Owner, err = decodeInt64(d.UserID); err != nil {
		return Item{}, fmt.Errorf("legacy %s %s: user_id: %w", kind, ShortID(it.ID), err)
	}
	if it.Scope, err = decodeInt64(d.GuildID); err != nil {
		return Item{}, fmt.Errorf("legacy %s %s: guild_id: %w", kind, ShortID(it.ID), err)
	}
	it.Title = strings.TrimSpace(d.Judul)
	if d.Deskripsi != nil {
		it.Description = strings.TrimSpace(*d.Deskripsi)
	}
	it.Completed = d.Status

	if created, err := decodeInstant(d.CreatedAt); err != nil {
		return Item{}, fmt.Errorf("legacy %s %s: created_at: %w", kind, ShortID(it.ID), err)
	} else if !created.IsZero() {
		it.CreatedAt = created
	}
	if it.CompletedAt, err = decodeInstant(d.CompletedAt); err != nil {
		return Item{}, fmt.Errorf("legacy %s %s: completed_at: %w", kind, ShortID(it.ID), err)
	}

	switch kind {
	case KindTask:
		deadline, err := decodeInstant(d.Deadline)
		if err != nil || deadline.IsZero() {
			return Item{}, fmt.Errorf("legacy task %s: deadline: %w", ShortID(it.ID), orMissing(err))
		}
		tag, ok := ParseTag(d.Tag)
		if !ok {
			tag = TagIndividual
		}
		td := &TaskData{Deadline: deadline, Tag: tag}
		for _, rawUser := range d.AssignedUsers {
			u, err := decodeInt64(rawUser)
			if err != nil {
				return Item{}, fmt.Errorf("legacy task %s: assigned_users: %w", ShortID(it.ID), err)
			}
			if u != 0 && !slices.Contains(td.Assigned, u) {
				td.Assigned = append(td.Assigned, u)
			}
		}
		it.Task = td
	case KindEvent:
		startRaw := d.TanggalMulai
		if isNullRaw(startRaw) {
			startRaw = d.Tanggal
		}
		start, err := decodeInstant(startRaw)
		if err != nil || start.IsZero() {
			return Item{}, fmt.Errorf("legacy event %s: tanggal_mulai: %w", ShortID(it.ID), orMissing(err))
		}
		end, err := decodeInstant(d.TanggalSelesai)
		if err != nil {
			return Item{}, fmt.Errorf("legacy event %s: tanggal_selesai: %w", ShortID(it.ID), err)
		}
		if !end.After(start) {
			end = start.Add(time.Hour)
		}
		it.Event = &EventData{Start: start, End: end}
	default:
		return Item{}, fmt.Errorf("legacy: unknown kind %q", kind)
	}

	for _, l := range d.RemindersSent {
		l = normalizeLegacyLabel(l)
		if l != "" && !slices.Contains(it.SentLabels, l) {
			it.SentLabels = append(it.SentLabels, l)
		}
	}
	for i, c := range d.CustomReminders {
		at, err := decodeInstant(c.Time)
		if err != nil || at.IsZero() {
			return Item{}, fmt.Errorf("legacy %s %s: custom_reminders[%d]: %w", kind, ShortID(it.ID), i, orMissing(err))
		}
		by, _ := decodeInt64(c.CreatedBy)
		if by == 0 {
			by = it.Owner
		}
		it.CustomReminders = append(it.CustomReminders, CustomReminder{
			ID:        NewID(),
			FireAt:    at,
			Sent:      c.Sent,
			CreatedBy: by,
		})
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = it.Anchor()
	}
	return it, it.Validate()
}

// DecodeLegacyStream reads a JSON array or newline-delimited documents.
func DecodeLegacyStream(kind Kind, r io.Reader) ([]Item, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var docs []json.RawMessage
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("legacy %s: %w", kind, err)
		}
	} else {
		for {
			var doc json.RawMessage
			if err := dec.Decode(&doc); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("legacy %s: document %d: %w", kind, len(docs)+1, err)
			}
			docs = append(docs, doc)
		}
	}

	out := make([]Item, 0, len(docs))
	for i, doc := range docs {
		it, err := DecodeLegacy(kind, doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		out = append(out, it)
	}
	return out, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func normalizeLegacyLabel(l string) string {
	l = strings.TrimSpace(l)
	switch {
	case l == "rem_due":
		return LabelDue
	case strings.HasPrefix(l, "rem_") && strings.HasSuffix(l, "h"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(l, "rem_"), "h"))
		if err != nil || n <= 0 {
			return ""
		}
		return ThresholdLabel(n)
	}
	return l
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("missing")
}

func isNullRaw(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}

// decodeLegacyID accepts {"$oid": "..."} or a plain string. An ObjectId
// also yields its embedded creation second.
func decodeLegacyID(raw json.RawMessage) (string, time.Time, error) {
	if isNullRaw(raw) {
		return NewID(), time.Time{}, nil
	}
	var id string
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &oid); err == nil && oid.OID != "" {
		id = oid.OID
	} else if err := json.Unmarshal(raw, &id); err != nil {
		return "", time.Time{}, fmt.Errorf("legacy _id: %w", err)
	}
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return NewID(), time.Time{}, nil
	}
	var created time.Time
	if len(id) == 24 {
		if b, err := hex.DecodeString(id[:8]); err == nil {
			secs := int64(b[0])<<24 | int64(b[1])<<16 | int64(b[2])<<8 | int64(b[3])
			created = time.Unix(secs, 0).UTC()
		}
	}
	return id, created, nil
}

// decodeInt64 accepts a number, a numeric string or {"$numberLong": "..."}.
// Snowflake IDs exceed float64 precision, so numbers are parsed as text.
func decodeInt64(raw json.RawMessage) (int64, error) {
	s := bytes.TrimSpace(raw)
	if isNullRaw(s) {
		return 0, nil
	}
	switch s[0] {
	case '{':
		var w struct {
			Long string `json:"$numberLong"`
			Int  string `json:"$numberInt"`
		}
		if err := json.Unmarshal(s, &w); err != nil {
			return 0, err
		}
		v := w.Long
		if v == "" {
			v = w.Int
		}
		return strconv.ParseInt(v, 10, 64)
	case '"':
		var str string
		if err := json.Unmarshal(s, &str); err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	}
	return strconv.ParseInt(string(s), 10, 64)
}

// decodeInstant accepts {"$date": ...} in either extended JSON mode, a date
// string or epoch milliseconds. Offset-less strings are UTC.
func decodeInstant(raw json.RawMessage) (time.Time, error) {
	s := bytes.TrimSpace(raw)
	if isNullRaw(s) {
		return time.Time{}, nil
	}
	switch s[0] {
	case '{':
		var w struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(s, &w); err != nil {
			return time.Time{}, err
		}
		if isNullRaw(w.Date) {
			return time.Time{}, fmt.Errorf("%w: object without $date", ErrInvalidFormat)
		}
		if bytes.HasPrefix(bytes.TrimSpace(w.Date), []byte("{")) {
			ms, err := decodeInt64(w.Date)
			if err != nil {
				return time.Time{}, err
			}
			return timeutil.ToCanonicalUTC(time.UnixMilli(ms)), nil
		}
		return decodeInstant(w.Date)
	case '"':
		var str string
		if err := json.Unmarshal(s, &str); err != nil {
			return time.Time{}, err
		}
		return timeutil.ParseStoredInstant(str)
	}
	ms, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidFormat, s)
	}
	return timeutil.ToCanonicalUTC(time.UnixMilli(ms)), nil
}

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// querier is the part of *sql.DB and *sql.Tx the loaders need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func openSQLite(cfg Config, log logx.Logger) (reminder.Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable("mkdir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// One connection: SQLite serializes writers anyway, and the pragmas
	// below are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *sqliteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *sqliteStore) InsertItem(ctx context.Context, it reminder.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "insert", func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, it.ID).Scan(&n); err != nil {
			return unavailable("insert", err)
		}
		if n > 0 {
			return fmt.Errorf("item %s: already exists", reminder.ShortID(it.ID))
		}
		if err := writeRow(ctx, tx, it, true); err != nil {
			return unavailable("insert", err)
		}
		for _, l := range it.SentLabels {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_labels(item_id, label) VALUES(?,?)`, it.ID, l); err != nil {
				return unavailable("insert", err)
			}
		}
		for _, r := range it.CustomReminders {
			if err := insertCustom(ctx, tx, it.ID, r); err != nil {
				return unavailable("insert", err)
			}
		}
		if it.Task != nil {
			if err := addAssignees(ctx, tx, it.ID, it.Task.Assigned); err != nil {
				return unavailable("insert", err)
			}
		}
		return nil
	})
}

// writeRow inserts or rewrites the scalar columns of it.
func writeRow(ctx context.Context, q querier, it reminder.Item, insert bool) error {
	var (
		endAt any
		tag   any
	)
	if it.Event != nil {
		endAt = it.Event.End.UTC().UnixNano()
	}
	if it.Task != nil {
		tag = string(it.Task.Tag)
	}
	args := []any{
		string(it.Kind()), it.Owner, it.Scope, it.Title, it.Description,
		boolInt(it.Completed), nanosOrNull(it.CompletedAt), nanosOrNull(it.CreatedAt),
		it.Anchor().UTC().UnixNano(), endAt, tag, it.ID,
	}
	var err error
	if insert {
		_, err = q.ExecContext(ctx,
			`INSERT INTO items(kind, owner, scope, title, description, completed, completed_at, created_at, anchor, end_at, tag, id)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	} else {
		_, err = q.ExecContext(ctx,
			`UPDATE items SET kind=?, owner=?, scope=?, title=?, description=?, completed=?, completed_at=?,
			 created_at=?, anchor=?, end_at=?, tag=? WHERE id=?`, args...)
	}
	return err
}

func insertCustom(ctx context.Context, q querier, itemID string, r reminder.CustomReminder) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO custom_reminders(item_id, id, fire_at, sent, created_by) VALUES(?,?,?,?,?)`,
		itemID, r.ID, r.FireAt.UTC().UnixNano(), boolInt(r.Sent), r.CreatedBy,
	)
	return err
}

func addAssignees(ctx context.Context, q querier, itemID string, users []int64) error {
	for _, u := range users {
		if u == 0 {
			continue
		}
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO assignees(item_id, user_id) VALUES(?,?)`, itemID, u); err != nil {
			return err
		}
	}
	return nil
}

const itemColumns = `id, kind, owner, scope, title, description, completed, completed_at, created_at, anchor, end_at, tag`

func (s *sqliteStore) FindItems(ctx context.Context, f reminder.Filter) ([]reminder.Item, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Owner != 0 {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Scope != nil {
		where = append(where, "scope = ?")
		args = append(args, *f.Scope)
	}
	if f.Open {
		where = append(where, "completed = 0")
	}
	if f.Tag != "" {
		where = append(where, "tag = ?")
		args = append(args, string(f.Tag))
	}
	if !f.AnchorAfter.IsZero() {
		where = append(where, "anchor > ?")
		args = append(args, f.AnchorAfter.UTC().UnixNano())
	}
	if !f.AnchorFrom.IsZero() {
		where = append(where, "anchor >= ?")
		args = append(args, f.AnchorFrom.UTC().UnixNano())
	}
	if !f.AnchorTo.IsZero() {
		where = append(where, "anchor <= ?")
		args = append(args, f.AnchorTo.UTC().UnixNano())
	}

	q := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY anchor, created_at, id`

	items, err := scanItems(ctx, s.db, q, args...)
	if err != nil {
		return nil, unavailable("find", err)
	}
	for i := range items {
		if err := loadChildren(ctx, s.db, &items[i]); err != nil {
			return nil, unavailable("find", err)
		}
	}
	reminder.SortByAnchor(items)
	return items, nil
}

func (s *sqliteStore) GetItem(ctx context.Context, id string) (reminder.Item, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q querier, id string) (reminder.Item, error) {
	items, err := scanItems(ctx, q, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if err != nil {
		return reminder.Item{}, unavailable("get", err)
	}
	if len(items) == 0 {
		return reminder.Item{}, notFound(id)
	}
	it := items[0]
	if err := loadChildren(ctx, q, &it); err != nil {
		return reminder.Item{}, unavailable("get", err)
	}
	return it, nil
}

// scanItems reads the scalar columns. Rows are closed before returning so
// the single connection is free for the child queries.
func scanItems(ctx context.Context, q querier, query string, args ...any) ([]reminder.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Item
	for rows.Next() {
		var (
			it                  reminder.Item
			kind                string
			completed           int
			completedAt, create sql.NullInt64
			anchor              int64
			endAt               sql.NullInt64
			tag                 sql.NullString
		)
		if err := rows.Scan(&it.ID, &kind, &it.Owner, &it.Scope, &it.Title, &it.Description,
			&completed, &completedAt, &create, &anchor, &endAt, &tag); err != nil {
			return nil, err
		}
		it.Completed = completed != 0
		it.CompletedAt = fromNullNanos(completedAt)
		it.CreatedAt = fromNullNanos(create)
		switch reminder.Kind(kind) {
		case reminder.KindEvent:
			it.Event = &reminder.EventData{Start: fromNanos(anchor), End: fromNullNanos(endAt)}
		default:
			it.Task = &reminder.TaskData{Deadline: fromNanos(anchor), Tag: reminder.Tag(tag.String)}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadChildren(ctx context.Context, q querier, it *reminder.Item) error {
	rows, err := q.QueryContext(ctx, `SELECT label FROM item_labels WHERE item_id = ? ORDER BY rowid`, it.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			rows.Close()
			return err
		}
		it.SentLabels = append(it.SentLabels, l)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, fire_at, sent, created_by FROM custom_reminders WHERE item_id = ? ORDER BY rowid`, it.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			r      reminder.CustomReminder
			fireAt int64
			sent   int
		)
		if err := rows.Scan(&r.ID, &fireAt, &sent, &r.CreatedBy); err != nil {
			rows.Close()
			return err
		}
		r.FireAt = fromNanos(fireAt)
		r.Sent = sent != 0
		it.CustomReminders = append(it.CustomReminders, r)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	if it.Task == nil {
		return nil
	}
	rows, err = q.QueryContext(ctx, `SELECT user_id FROM assignees WHERE item_id = ? ORDER BY rowid`, it.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var u int64
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		it.Task.Assigned = append(it.Task.Assigned, u)
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *sqliteStore) UpdateItem(ctx context.Context, id string, p reminder.Patch) error {
	return s.inTx(ctx, "update", func(tx *sql.Tx) error {
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		it = applyPatch(it, p)
		if err := writeRow(ctx, tx, it, false); err != nil {
			return unavailable("update", err)
		}
		if p.ResetLabels {
			if _, err := tx.ExecContext(ctx, `DELETE FROM item_labels WHERE item_id = ?`, id); err != nil {
				return unavailable("update", err)
			}
		}
		if it.Task != nil && len(p.AddAssigned) > 0 {
			if err := addAssignees(ctx, tx, id, p.AddAssigned); err != nil {
				return unavailable("update", err)
			}
		}
		return nil
	})
}

func (s *sqliteStore) exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) AddLabel(ctx context.Context, id, label string) (bool, error) {
	ok, err := s.exists(ctx, id)
	if err != nil {
		return false, unavailable("label", err)
	}
	if !ok {
		return false, notFound(id)
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO item_labels(item_id, label) VALUES(?,?)`, id, label)
	if err != nil {
		return false, unavailable("label", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("label", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) AddCustomReminder(ctx context.Context, id string, r reminder.CustomReminder) error {
	ok, err := s.exists(ctx, id)
	if err != nil {
		return unavailable("custom", err)
	}
	if !ok {
		return notFound(id)
	}
	if err := insertCustom(ctx, s.db, id, r); err != nil {
		return unavailable("custom", err)
	}
	return nil
}

func (s *sqliteStore) MarkCustomSent(ctx context.Context, id, reminderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE custom_reminders SET sent = 1 WHERE item_id = ? AND id = ?`, id, reminderID)
	if err != nil {
		return unavailable("custom_sent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("custom_sent", err)
	}
	if n == 0 {
		return fmt.Errorf("custom reminder %s: %w", reminderID, reminder.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteItem(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
		if err != nil {
			return unavailable("delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(id)
		}
		for _, table := range []string{"item_labels", "custom_reminders", "assignees"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE item_id = ?`, id); err != nil {
				return unavailable("delete", err)
			}
		}
		return nil
	})
}

func (s *sqliteStore) GetUserSettings(ctx context.Context, user int64) (reminder.UserSettings, error) {
	us := reminder.UserSettings{UserID: user}
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM user_settings WHERE user_id = ?`, user).Scan(&us.Timezone)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return us, unavailable("user_settings", err)
	}
	return us, nil
}

func (s *sqliteStore) PutUserTimezone(ctx context.Context, user int64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, timezone) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone`,
		user, tz,
	)
	if err != nil {
		return unavailable("user_settings", err)
	}
	return nil
}

func (s *sqliteStore) GetGuildSettings(ctx context.Context, scope int64) (reminder.GuildSettings, error) {
	g := reminder.GuildSettings{Scope: scope}
	err := s.db.QueryRowContext(ctx,
		`SELECT task_chat, task_thread, event_chat, event_thread FROM guild_settings WHERE scope = ?`, scope,
	).Scan(&g.TaskTarget.ChatID, &g.TaskTarget.ThreadID, &g.EventTarget.ChatID, &g.EventTarget.ThreadID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return reminder.GuildSettings{Scope: scope}, unavailable("guild_settings", err)
	}
	return g, nil
}

func (s *sqliteStore) PutGuildTarget(ctx context.Context, scope int64, kind reminder.Kind, target kit.ChatTarget) error {
	chatCol, threadCol := "task_chat", "task_thread"
	if kind == reminder.KindEvent {
		chatCol, threadCol = "event_chat", "event_thread"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings(scope, `+chatCol+`, `+threadCol+`) VALUES(?,?,?)
		 ON CONFLICT(scope) DO UPDATE SET `+chatCol+`=excluded.`+chatCol+`, `+threadCol+`=excluded.`+threadCol,
		scope, target.ChatID, target.ThreadID,
	)
	if err != nil {
		return unavailable("guild_settings", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nanosOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNullNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromNanos(n.Int64)
}

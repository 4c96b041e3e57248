package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

const snapshotVersion = 1

// fileStore keeps everything in a Memory and rewrites the snapshot file
// atomically after every mutation. The data set is small (open reminders of
// one bot), so a full rewrite stays cheap.
type fileStore struct {
	*Memory
	path string
	log  logx.Logger
}

type snapshot struct {
	Version int                      `json:"version"`
	Items   []reminder.Item          `json:"items"`
	Users   []reminder.UserSettings  `json:"users,omitempty"`
	Guilds  []reminder.GuildSettings `json:"guilds,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (reminder.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable("mkdir", err)
	}

	mem := NewMemory()
	if err := loadSnapshot(path, mem); err != nil {
		return nil, err
	}
	fs := &fileStore{Memory: mem, path: path, log: log}
	mem.persist = fs.writeLocked
	log.Info("storage opened",
		logx.String("path", path),
		logx.Int("items", len(mem.items)),
	)
	return fs, nil
}

func loadSnapshot(path string, into *Memory) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return unavailable("read", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("storage: decode %s: %w", path, err)
	}
	if snap.Version > snapshotVersion {
		return fmt.Errorf("storage: %s has snapshot version %d, newer than %d", path, snap.Version, snapshotVersion)
	}
	for _, it := range snap.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("storage: %s: %w", path, err)
		}
		into.items[it.ID] = it
	}
	for _, us := range snap.Users {
		into.users[us.UserID] = us
	}
	for _, g := range snap.Guilds {
		into.guilds[g.Scope] = g
	}
	return nil
}

// writeLocked runs with Memory.mu held.
func (s *fileStore) writeLocked() error {
	snap := snapshot{Version: snapshotVersion, Items: make([]reminder.Item, 0, len(s.items))}
	for _, it := range s.items {
		snap.Items = append(snap.Items, it)
	}
	reminder.SortByAnchor(snap.Items)
	for _, us := range s.users {
		snap.Users = append(snap.Users, us)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].UserID < snap.Users[j].UserID })
	for _, g := range s.guilds {
		snap.Guilds = append(snap.Guilds, g)
	}
	sort.Slice(snap.Guilds, func(i, j int) bool { return snap.Guilds[i].Scope < snap.Guilds[j].Scope })

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(b)); err != nil {
		s.log.Warn("snapshot write failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}

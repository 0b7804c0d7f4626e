// Package settings provides a file-backed maker settings store for
// single-box deployments that do not run PostgreSQL.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/quantpulse/makerbot/internal/domain"
)

// fileSettings mirrors domain.MakerSettings with TOML tags. CancelAfter is
// expressed in milliseconds on disk.
type fileSettings struct {
	Enabled         bool    `toml:"enabled"`
	Symbol          string  `toml:"symbol"`
	QuoteSize       float64 `toml:"quote_size"`
	MinSpreadPct    float64 `toml:"min_spread_pct"`
	AdversePct      float64 `toml:"adverse_pct"`
	CancelAfterMs   int64   `toml:"cancel_after_ms"`
	MaxPos          float64 `toml:"max_pos"`
	MaxTradesPerDay int     `toml:"max_trades_per_day"`
}

type settingsFile struct {
	Users map[string]fileSettings `toml:"users"`
}

// FileStore serves maker settings from a TOML file keyed by uid. The file is
// re-read when fsnotify reports a write, so edits take effect without a
// restart. It implements domain.SettingsStore.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	users    map[string]domain.MakerSettings
	loadedAt time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore loads the settings file and begins watching it for changes.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		logger: logger.With(slog.String("component", "settings_filestore")),
		done:   make(chan struct{}),
	}
	if err := fs.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("settings: create watcher: %w", err)
	}
	// Watch the directory rather than the file itself so atomic
	// rename-into-place saves keep firing events.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("settings: watch %s: %w", filepath.Dir(path), err)
	}
	fs.watcher = watcher
	go fs.watchLoop()
	return fs, nil
}

// GetSettings returns the settings for a user with defaults applied. Returns
// domain.ErrNotFound when the file has no entry for the uid.
func (f *FileStore) GetSettings(_ context.Context, uid string) (domain.MakerSettings, error) {
	f.mu.RLock()
	s, ok := f.users[uid]
	f.mu.RUnlock()
	if !ok {
		return domain.MakerSettings{}, fmt.Errorf("settings: user %s: %w", uid, domain.ErrNotFound)
	}
	return s, nil
}

// Close stops the file watcher.
func (f *FileStore) Close() error {
	close(f.done)
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FileStore) reload() error {
	var raw settingsFile
	if _, err := toml.DecodeFile(f.path, &raw); err != nil {
		return fmt.Errorf("settings: decode %s: %w", f.path, err)
	}

	users := make(map[string]domain.MakerSettings, len(raw.Users))
	for uid, fs := range raw.Users {
		s := domain.MakerSettings{
			Enabled:         fs.Enabled,
			Symbol:          fs.Symbol,
			QuoteSize:       fs.QuoteSize,
			MinSpreadPct:    fs.MinSpreadPct,
			AdversePct:      fs.AdversePct,
			CancelAfter:     time.Duration(fs.CancelAfterMs) * time.Millisecond,
			MaxPos:          fs.MaxPos,
			MaxTradesPerDay: fs.MaxTradesPerDay,
			UpdatedAt:       time.Now().UTC(),
		}.Normalize()
		if err := s.Validate(); err != nil {
			return fmt.Errorf("settings: user %s: %w", uid, err)
		}
		users[uid] = s
	}

	f.mu.Lock()
	f.users = users
	f.loadedAt = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *FileStore) watchLoop() {
	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Name != f.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			// Editors often fire a burst of events for one save.
			time.Sleep(100 * time.Millisecond)
			if err := f.reload(); err != nil {
				// Keep serving the last good snapshot on parse errors.
				f.logger.Warn("settings reload failed", slog.String("error", err.Error()))
				continue
			}
			f.logger.Info("settings reloaded", slog.String("path", f.path))
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("settings watcher error", slog.String("error", err.Error()))
		}
	}
}

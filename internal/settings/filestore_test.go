package settings

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

const settingsTOML = `
[users.u1]
enabled = true
symbol = "BTCUSDT"
quote_size = 0.5
min_spread_pct = 0.0003
adverse_pct = 0.001
cancel_after_ms = 4000
max_pos = 2.0
max_trades_per_day = 50

[users.u2]
enabled = false
symbol = "ETHUSDT"
`

func writeSettingsFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T, content string) (*FileStore, string) {
	t.Helper()
	path := writeSettingsFile(t, t.TempDir(), content)
	fs, err := NewFileStore(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs, path
}

func TestFileStoreGetSettings(t *testing.T) {
	fs, _ := newTestStore(t, settingsTOML)

	st, err := fs.GetSettings(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, st.Enabled)
	require.Equal(t, "BTCUSDT", st.Symbol)
	require.InDelta(t, 0.5, st.QuoteSize, 1e-9)
	require.InDelta(t, 0.0003, st.MinSpreadPct, 1e-9)
	require.Equal(t, 4*time.Second, st.CancelAfter)
	require.Equal(t, 50, st.MaxTradesPerDay)
}

func TestFileStoreAppliesDefaults(t *testing.T) {
	fs, _ := newTestStore(t, settingsTOML)

	// u2 leaves numeric fields unset; they come back normalized.
	st, err := fs.GetSettings(context.Background(), "u2")
	require.NoError(t, err)
	require.False(t, st.Enabled)
	require.InDelta(t, domain.DefaultQuoteSize, st.QuoteSize, 1e-9)
	require.Equal(t, domain.DefaultCancelAfter, st.CancelAfter)
	require.InDelta(t, domain.DefaultMaxPos, st.MaxPos, 1e-9)
}

func TestFileStoreUnknownUser(t *testing.T) {
	fs, _ := newTestStore(t, settingsTOML)

	_, err := fs.GetSettings(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileStoreRejectsInvalidFile(t *testing.T) {
	path := writeSettingsFile(t, t.TempDir(), `[users.u1]
quote_size = -1.0
`)
	_, err := NewFileStore(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestFileStoreReloadsOnWrite(t *testing.T) {
	fs, path := newTestStore(t, settingsTOML)

	updated := `
[users.u1]
enabled = true
symbol = "BTCUSDT"
quote_size = 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		st, err := fs.GetSettings(context.Background(), "u1")
		return err == nil && st.QuoteSize == 0.75
	}, 3*time.Second, 25*time.Millisecond)

	// u2 was removed by the rewrite.
	_, err := fs.GetSettings(context.Background(), "u2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileStoreKeepsLastGoodSnapshotOnParseError(t *testing.T) {
	fs, path := newTestStore(t, settingsTOML)

	require.NoError(t, os.WriteFile(path, []byte("this is not toml = ["), 0o644))

	// Give the watcher time to notice and fail the reload.
	time.Sleep(300 * time.Millisecond)

	st, err := fs.GetSettings(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", st.Symbol)
}

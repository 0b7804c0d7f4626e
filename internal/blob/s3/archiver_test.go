package s3blob

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

func TestArchivePath(t *testing.T) {
	cutoff := time.Date(2026, 8, 15, 3, 0, 0, 0, time.UTC)
	require.Equal(t, "archive/execution_log/2026-08.jsonl", archivePath("execution_log", cutoff))
}

func TestMarshalJSONL(t *testing.T) {
	entries := []domain.ExecutionLogEntry{
		{UID: "u1", Action: domain.ExecActionBidPlaced, Symbol: "BTCUSDT", Price: 100.5},
		{UID: "u2", Action: domain.ExecActionCanceled, Symbol: "ETHUSDT", Reason: "loop stopped"},
	}

	buf, err := marshalJSONL(entries)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"uid":"u1"`)
	require.Contains(t, lines[0], `"action":"BID_PLACED"`)
	require.Contains(t, lines[1], `"reason":"loop stopped"`)
}

func TestMarshalJSONLEmpty(t *testing.T) {
	buf, err := marshalJSONL([]domain.ExecutionLogEntry{})
	require.NoError(t, err)
	require.Empty(t, buf)
}

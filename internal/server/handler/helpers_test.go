package handler

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseListOptsDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/accounts/u1/log", nil)
	opts := parseListOpts(r)
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)
	require.Nil(t, opts.Since)
	require.Nil(t, opts.Until)
}

func TestParseListOptsLimitCapped(t *testing.T) {
	r := httptest.NewRequest("GET", "/log?limit=9999&offset=20", nil)
	opts := parseListOpts(r)
	require.Equal(t, 500, opts.Limit)
	require.Equal(t, 20, opts.Offset)
}

func TestParseListOptsIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/log?limit=-5&offset=x&since=yesterday", nil)
	opts := parseListOpts(r)
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)
	require.Nil(t, opts.Since)
}

func TestParseListOptsTimeWindow(t *testing.T) {
	r := httptest.NewRequest("GET", "/log?since=2025-06-01T00:00:00Z&until=2025-06-02T00:00:00Z", nil)
	opts := parseListOpts(r)
	require.NotNil(t, opts.Since)
	require.NotNil(t, opts.Until)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), opts.Since.UTC())
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), opts.Until.UTC())
}

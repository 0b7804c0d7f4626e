package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

type fakeCloser struct {
	order *domain.Order
	err   error
	calls []string
}

func (f *fakeCloser) ClosePosition(_ context.Context, uid, symbol string) (*domain.Order, error) {
	f.calls = append(f.calls, uid+"/"+symbol)
	return f.order, f.err
}

func TestParseCloseSpec(t *testing.T) {
	tests := []struct {
		spec     string
		uid, sym string
		wantErr  bool
	}{
		{spec: "u1:BTCUSDT", uid: "u1", sym: "BTCUSDT"},
		{spec: " u1 : BTCUSDT ", uid: "u1", sym: "BTCUSDT"},
		{spec: "u1", wantErr: true},
		{spec: ":BTCUSDT", wantErr: true},
		{spec: "u1:", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		uid, sym, err := ParseCloseSpec(tt.spec)
		if tt.wantErr {
			require.Error(t, err, tt.spec)
			continue
		}
		require.NoError(t, err, tt.spec)
		require.Equal(t, tt.uid, uid)
		require.Equal(t, tt.sym, sym)
	}
}

func TestClosePositionOnceFlatIsSuccess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closer := &fakeCloser{}

	err := closePositionOnce(context.Background(), closer, logger, "u1", "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, []string{"u1/BTCUSDT"}, closer.calls)
}

func TestClosePositionOnceReportsOrder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closer := &fakeCloser{order: &domain.Order{
		OrderID:  "42",
		Symbol:   "BTCUSDT",
		Side:     domain.OrderSideSell,
		Quantity: 0.4,
	}}

	err := closePositionOnce(context.Background(), closer, logger, "u1", "BTCUSDT")
	require.NoError(t, err)
}

func TestClosePositionOnceSurfacesError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closer := &fakeCloser{err: errors.New("exchange down")}

	err := closePositionOnce(context.Background(), closer, logger, "u1", "BTCUSDT")
	require.ErrorContains(t, err, "exchange down")
}

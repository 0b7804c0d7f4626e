package maker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/exchange"
	"github.com/quantpulse/makerbot/internal/metrics"
)

// Session is one user's running market-making state: the loop plus the
// connector it was bound to.
type Session struct {
	UID       string
	Symbol    string
	Loop      *Loop
	StartedAt time.Time

	streamCancel context.CancelFunc
}

// SessionManager owns all per-user sessions, keyed by uid. Per-user state is
// never ambient: each session's tracker, counter, and loop live on the
// session object, so sessions are independently startable, stoppable, and
// testable.
type SessionManager struct {
	pool      *exchange.Pool
	placer    OrderPlacer
	settings  domain.SettingsStore
	execLog   domain.ExecutionLogStore
	broadcast domain.BroadcastSink
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a SessionManager with no running sessions.
func NewSessionManager(
	pool *exchange.Pool,
	placer OrderPlacer,
	settings domain.SettingsStore,
	execLog domain.ExecutionLogStore,
	broadcast domain.BroadcastSink,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		pool:      pool,
		placer:    placer,
		settings:  settings,
		execLog:   execLog,
		broadcast: broadcast,
		logger:    logger.With(slog.String("component", "session_manager")),
		sessions:  make(map[string]*Session),
	}
}

// StartSession resolves the user's connector, builds a fresh loop, starts it
// on the given symbol and interval, and subscribes to the connector's fill
// stream when it provides one. ctx bounds only the settings and connector
// lookups; the started loop runs until StopSession or Shutdown. Starting a
// uid that already has a session rejects with ErrLoopRunning; a user whose
// settings are disabled rejects with ErrSettingsDisabled.
func (m *SessionManager) StartSession(ctx context.Context, uid, symbol string, interval time.Duration) (*Session, error) {
	m.mu.Lock()
	if _, ok := m.sessions[uid]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("maker: session %s: %w", uid, domain.ErrLoopRunning)
	}
	m.mu.Unlock()

	// Refuse to schedule a loop that would no-op every cycle; the operator
	// gets an explicit error instead of a silently idle session.
	st, err := m.settings.GetSettings(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !st.Enabled {
		return nil, fmt.Errorf("maker: session %s: %w", uid, domain.ErrSettingsDisabled)
	}

	conn, err := m.pool.Resolve(ctx, uid)
	if err != nil {
		return nil, err
	}

	// ctx scopes only the resolution above. The loop outlives the caller
	// (typically an HTTP start request) and runs until StopSession.
	loop := NewLoop(uid, conn, m.placer, m.settings, m.execLog, m.broadcast, m.logger)
	if err := loop.Start(context.Background(), symbol, interval); err != nil {
		return nil, err
	}

	sess := &Session{
		UID:       uid,
		Symbol:    symbol,
		Loop:      loop,
		StartedAt: time.Now().UTC(),
	}

	if fs, ok := conn.(domain.FillStreamConnector); ok {
		streamCtx, cancel := context.WithCancel(context.Background())
		sess.streamCancel = cancel
		if err := fs.StreamOrderUpdates(streamCtx, func(u domain.OrderUpdate) {
			u.UID = uid
			loop.OnOrderUpdate(u)
		}); err != nil {
			cancel()
			loop.Stop()
			return nil, fmt.Errorf("maker: session %s: fill stream: %w", uid, err)
		}
	}

	m.mu.Lock()
	// Re-check under the lock: a concurrent StartSession may have won.
	if _, ok := m.sessions[uid]; ok {
		m.mu.Unlock()
		if sess.streamCancel != nil {
			sess.streamCancel()
		}
		loop.Stop()
		return nil, fmt.Errorf("maker: session %s: %w", uid, domain.ErrLoopRunning)
	}
	m.sessions[uid] = sess
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	m.logger.Info("session started",
		slog.String("uid", uid),
		slog.String("symbol", symbol),
		slog.Duration("interval", interval),
	)
	return sess, nil
}

// StopSession stops the user's loop and tears the session down. Stopping a
// uid with no session returns ErrLoopNotRunning.
func (m *SessionManager) StopSession(uid string) error {
	m.mu.Lock()
	sess, ok := m.sessions[uid]
	delete(m.sessions, uid)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("maker: session %s: %w", uid, domain.ErrLoopNotRunning)
	}

	if sess.streamCancel != nil {
		sess.streamCancel()
	}
	sess.Loop.Stop()
	metrics.ActiveSessions.Dec()
	m.logger.Info("session stopped", slog.String("uid", uid))
	return nil
}

// Route delivers a fill notification to the owning session, if any. Used by
// transports that multiplex several users onto one stream.
func (m *SessionManager) Route(update domain.OrderUpdate) {
	m.mu.Lock()
	sess, ok := m.sessions[update.UID]
	m.mu.Unlock()
	if ok {
		sess.Loop.OnOrderUpdate(update)
	}
}

// Session returns the running session for uid, if any.
func (m *SessionManager) Session(uid string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[uid]
	return sess, ok
}

// Active returns the uids of all running sessions.
func (m *SessionManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	uids := make([]string, 0, len(m.sessions))
	for uid := range m.sessions {
		uids = append(uids, uid)
	}
	return uids
}

// Shutdown stops all sessions concurrently and waits for them to finish.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, uid := range m.Active() {
		g.Go(func() error {
			return m.StopSession(uid)
		})
	}
	return g.Wait()
}

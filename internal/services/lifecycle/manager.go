package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc releases one component.
type ShutdownFunc func(ctx context.Context) error

// RunFunc is a long-running component. It returns when the component stops.
type RunFunc func() error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager owns the process lifetime: it starts background components,
// cancels the application context on a signal or a component crash, and
// stops components in reverse registration order.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	hooks   []hook
	cancel  context.CancelFunc
	crashed error
}

// New creates a lifecycle manager. A non-positive timeout defaults to 15s.
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown hook.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Go runs a component in the background. If it returns an error before
// shutdown has started, the application context is cancelled.
func (m *Manager) Go(name string, run RunFunc) {
	go func() {
		err := run()
		if err == nil {
			return
		}
		m.logger.Error("component crashed", zap.String("component", name), zap.Error(err))

		m.mu.Lock()
		if m.crashed == nil {
			m.crashed = err
		}
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()
}

// Err returns the first component crash, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crashed
}

// Components lists registered hooks in shutdown order.
func (m *Manager) Components() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.hooks))
	for i := len(m.hooks) - 1; i >= 0; i-- {
		out = append(out, m.hooks[i].name)
	}
	return out
}

// Shutdown runs every hook within the configured timeout and joins their errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Info("component stopped", zap.String("component", h.name))
	}
	return result
}

// Listen cancels the application context on SIGTERM or SIGINT. The same
// cancel function is used when a component started with Go crashes.
func (m *Manager) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		sig := <-sigCh
		m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()
}

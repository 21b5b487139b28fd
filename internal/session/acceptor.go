package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"mediasrv/internal/platform/metrics"
)

// acceptBackoff is how long the acceptor waits before re-checking capacity
// when the session ceiling is reached. Admission control, not a fair queue.
const acceptBackoff = 100 * time.Millisecond

// Acceptor accepts inbound connections, bounds concurrent sessions, and
// dispatches each to an independently scheduled Handler goroutine.
type Acceptor struct {
	handler *Handler
	log     *slog.Logger
	metrics *metrics.Metrics

	slots  *semaphore.Weighted
	active atomic.Int64

	ln        net.Listener
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewAcceptor returns an Acceptor with the given concurrent-session ceiling.
// metrics may be nil to disable metric recording.
func NewAcceptor(handler *Handler, maxSessions int, log *slog.Logger, m *metrics.Metrics) *Acceptor {
	return &Acceptor{
		handler: handler,
		log:     log,
		metrics: m,
		slots:   semaphore.NewWeighted(int64(maxSessions)),
		done:    make(chan struct{}),
	}
}

// Active returns the number of sessions currently being served.
func (a *Acceptor) Active() int {
	return int(a.active.Load())
}

// Serve accepts connections on ln until Shutdown. At the session ceiling,
// new accepts are deferred with a polling backoff rather than rejected.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	a.ln = ln

	for {
		if !a.slots.TryAcquire(1) {
			select {
			case <-a.done:
				return nil
			case <-time.After(acceptBackoff):
			}
			continue
		}

		conn, err := ln.Accept()
		if err != nil {
			a.slots.Release(1)
			select {
			case <-a.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.log.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		a.dispatch(ctx, conn)
	}
}

func (a *Acceptor) dispatch(ctx context.Context, conn net.Conn) {
	sessionID := uuid.NewString()
	a.active.Add(1)
	if a.metrics != nil {
		a.metrics.IncSessions()
		a.metrics.SetActiveSessions(a.Active())
	}
	a.log.Info("client connected",
		slog.String("session", sessionID),
		slog.String("remote", conn.RemoteAddr().String()))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handler.Handle(ctx, conn, sessionID, func() {
			a.active.Add(-1)
			a.slots.Release(1)
			if a.metrics != nil {
				a.metrics.SetActiveSessions(a.Active())
			}
			a.log.Info("client disconnected",
				slog.String("session", sessionID),
				slog.Int("active", a.Active()))
		})
	}()
}

// Shutdown stops accepting and waits for in-flight sessions until ctx
// expires. Session connections are closed by their handlers as clients
// disconnect; launched streams are terminated separately by the registry.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.closeOnce.Do(func() {
		close(a.done)
		if a.ln != nil {
			a.ln.Close()
		}
	})

	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package session

import (
	"context"
	"net"
	"testing"
	"time"

	"mediasrv/internal/catalog"
	"mediasrv/internal/platform/logger"
)

func startAcceptor(t *testing.T, maxSessions int) (*Acceptor, string) {
	t.Helper()
	h := NewHandler(catalog.New(t.TempDir()), &fakeLauncher{}, "Multimedia Server", logger.Nop(), nil)
	a := NewAcceptor(h, maxSessions, logger.Nop(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- a.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Shutdown(ctx)
		select {
		case <-serveDone:
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})
	return a, ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAcceptor_countsSessions(t *testing.T) {
	a, addr := startAcceptor(t, 10)

	c1 := dial(t, addr)
	readReply(t, c1)
	c2 := dial(t, addr)
	readReply(t, c2)

	waitFor(t, "two active sessions", func() bool { return a.Active() == 2 })

	send(t, c1, "Bye")
	waitFor(t, "one active session", func() bool { return a.Active() == 1 })
}

func TestAcceptor_defersAboveCeiling(t *testing.T) {
	a, addr := startAcceptor(t, 1)

	c1 := dial(t, addr)
	readReply(t, c1)
	waitFor(t, "first session", func() bool { return a.Active() == 1 })

	// Second connection completes the TCP handshake via the backlog but is
	// not dispatched (no greeting) while the slot is held.
	c2 := dial(t, addr)
	c2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := ReadFrame(c2); err == nil {
		t.Fatal("second session dispatched above the ceiling")
	}

	// Freeing the slot admits the waiting connection.
	send(t, c1, "Bye")
	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if msg, err := ReadFrame(c2); err != nil || msg != "Welcome to the Multimedia Server" {
		t.Errorf("deferred session greeting = %q err=%v", msg, err)
	}
}

func TestAcceptor_shutdownWithIdleSessions(t *testing.T) {
	a, addr := startAcceptor(t, 5)

	c := dial(t, addr)
	readReply(t, c)
	send(t, c, "Bye")
	waitFor(t, "session to end", func() bool { return a.Active() == 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

package stream

import (
	"fmt"
	"net"
)

// AllocatePort binds an anonymous listening socket so the OS picks a free
// ephemeral port, reads it back, and releases the socket. There is an
// inherent race window between release and reuse by the delivery process;
// the handoff is immediate, which is the only mitigation. This is the
// original design's accepted best-effort behaviour.
func AllocatePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate ephemeral port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port, nil
}

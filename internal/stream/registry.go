package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"sync"
)

// Registry tracks every launched delivery mechanism by protocol and port so
// they can be terminated in bulk at shutdown. Termination is coarse: push
// processes are killed, embedded servers are shut down.
type Registry struct {
	mu      sync.Mutex
	procs   map[string]*exec.Cmd
	servers map[string]*http.Server
	log     *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		procs:   make(map[string]*exec.Cmd),
		servers: make(map[string]*http.Server),
		log:     log,
	}
}

func key(protocol Protocol, port int) string {
	return fmt.Sprintf("%s:%d", protocol, port)
}

// AddProcess records a running push process.
func (r *Registry) AddProcess(protocol Protocol, port int, cmd *exec.Cmd) {
	r.mu.Lock()
	r.procs[key(protocol, port)] = cmd
	r.mu.Unlock()
}

// AddServer records a running embedded file server.
func (r *Registry) AddServer(protocol Protocol, port int, srv *http.Server) {
	r.mu.Lock()
	r.servers[key(protocol, port)] = srv
	r.mu.Unlock()
}

// Remove drops a finished entry.
func (r *Registry) Remove(protocol Protocol, port int) {
	r.mu.Lock()
	delete(r.procs, key(protocol, port))
	delete(r.servers, key(protocol, port))
	r.mu.Unlock()
}

// Len returns the number of tracked delivery mechanisms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs) + len(r.servers)
}

// Shutdown terminates every tracked process and server. Safe to call once
// at server shutdown; the registry is empty afterwards.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	procs := r.procs
	servers := r.servers
	r.procs = make(map[string]*exec.Cmd)
	r.servers = make(map[string]*http.Server)
	r.mu.Unlock()

	for k, cmd := range procs {
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				r.log.Warn("kill stream process", slog.String("stream", k), slog.String("error", err.Error()))
			}
		}
	}
	for k, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			r.log.Warn("shutdown stream server", slog.String("stream", k), slog.String("error", err.Error()))
		}
	}
}

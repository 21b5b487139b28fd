// Package session implements the text protocol spoken on each client
// connection and the acceptor that bounds concurrent sessions.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"mediasrv/internal/catalog"
	"mediasrv/internal/platform/metrics"
	"mediasrv/internal/stream"
)

// Launcher is the slice of the stream launcher the handler needs.
type Launcher interface {
	Launch(ctx context.Context, req stream.Request) (*stream.Session, error)
}

// Handler runs one client session: greeting, then one command per frame
// until Bye or a connection error. It holds no cross-session state; all
// mutation goes through the shared catalog and launcher.
type Handler struct {
	cat      *catalog.Catalog
	launcher Launcher
	greeting string
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler. metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(cat *catalog.Catalog, launcher Launcher, serverName string, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		cat:      cat,
		launcher: launcher,
		greeting: "Welcome to the " + serverName,
		log:      log,
		metrics:  m,
	}
}

// Handle serves one connection to completion. onDisconnect fires exactly
// once when the session ends, for the acceptor's bookkeeping.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, sessionID string, onDisconnect func()) {
	defer onDisconnect()
	defer conn.Close()

	log := h.log.With(slog.String("session", sessionID))

	if err := WriteFrame(conn, h.greeting); err != nil {
		log.Debug("greeting failed", slog.String("error", err.Error()))
		return
	}

	for {
		command, err := ReadFrame(conn)
		if err != nil {
			// EOF or broken connection: no reply expected or attempted.
			log.Info("client disconnected")
			return
		}

		if strings.EqualFold(strings.TrimSpace(command), "Bye") {
			log.Info("client sent exit")
			return
		}

		response := h.process(ctx, log, command)
		if err := WriteFrame(conn, response); err != nil {
			log.Info("write failed, closing session", slog.String("error", err.Error()))
			return
		}
	}
}

// process turns one command line into its reply. The session stays open no
// matter what the command was.
func (h *Handler) process(ctx context.Context, log *slog.Logger, command string) string {
	log.Debug("command received", slog.String("command", command))

	switch {
	case strings.HasPrefix(command, "LIST"):
		h.countCommand("LIST")
		return h.cat.List()

	case strings.HasPrefix(command, "GET "):
		h.countCommand("GET")
		return h.cat.Info(strings.TrimSpace(command[4:]))

	case strings.HasPrefix(command, "PLAY "):
		h.countCommand("PLAY")
		return h.play(ctx, log, strings.TrimSpace(command[5:]))

	default:
		if h.metrics != nil {
			h.metrics.IncUnknownCommands()
		}
		return "Unknown command"
	}
}

// play parses "PLAY <asset>[-<quality>.<format>] [PROTOCOL=<proto>]" and
// launches the stream.
func (h *Handler) play(ctx context.Context, log *slog.Logger, rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return h.clientError("missing play target")
	}

	req := stream.Request{Protocol: stream.DefaultProtocol}

	target := fields[0]
	if artifact, ok := catalog.ParseFilename(target); ok {
		req.Asset = artifact.Asset
		req.Quality = artifact.Quality
		req.Format = artifact.Format
	} else {
		req.Asset = target
	}

	for _, field := range fields[1:] {
		upper := strings.ToUpper(field)
		if !strings.HasPrefix(upper, "PROTOCOL=") {
			return h.clientError("malformed play option: " + field)
		}
		proto, ok := stream.ParseProtocol(field[len("PROTOCOL="):])
		if !ok {
			return h.clientError("unsupported protocol: " + field[len("PROTOCOL="):])
		}
		req.Protocol = proto
	}

	session, err := h.launcher.Launch(ctx, req)
	if err != nil {
		log.Info("play failed",
			slog.String("asset", req.Asset),
			slog.String("protocol", string(req.Protocol)),
			slog.String("error", err.Error()))
		return h.clientError(err.Error())
	}

	descriptor := fmt.Sprintf("STREAM:%d:%s:%s", session.Port, session.Filename, session.Protocol)
	if session.SDP != "" {
		descriptor += ":SDP:" + base64.StdEncoding.EncodeToString([]byte(session.SDP))
	}
	return descriptor
}

func (h *Handler) clientError(reason string) string {
	if h.metrics != nil {
		h.metrics.IncErrors()
	}
	return "ERROR: " + reason
}

func (h *Handler) countCommand(name string) {
	if h.metrics != nil {
		h.metrics.IncCommand(name)
	}
}

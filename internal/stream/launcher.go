// Package stream launches delivery mechanisms for chosen assets: external
// push processes for UDP, TCP, and RTP/UDP, and an embedded file server for
// segmented delivery. Every launch allocates its own ephemeral port.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"mediasrv/internal/catalog"
	"mediasrv/internal/hls"
	"mediasrv/internal/platform/metrics"
)

// Commander builds unstarted commands for the external streaming binary.
// Satisfied by ffmpeg.Runner; faked in tests.
type Commander interface {
	Command(args ...string) *exec.Cmd
}

// Request selects what to stream and how. Quality and Format are optional;
// when empty the asset's highest quality and first matching format are used.
type Request struct {
	Asset    string
	Quality  catalog.Quality
	Format   catalog.Format
	Protocol Protocol
}

// Session describes one launched stream: the ephemeral port, the source
// filename (or manifest name for segmented delivery), and, for
// session-described delivery, the captured SDP content.
type Session struct {
	Protocol Protocol
	Port     int
	Filename string
	SDP      string
}

// Launcher dispatches launch requests by protocol and tracks what it starts
// in a Registry.
type Launcher struct {
	cat       *catalog.Catalog
	commander Commander
	registry  *Registry
	log       *slog.Logger
	metrics   *metrics.Metrics

	// Grace and poll tunables, settable in tests.
	UDPGrace        time.Duration
	TCPGrace        time.Duration
	SDPPollInterval time.Duration
	SDPPollRetries  int
}

// NewLauncher returns a Launcher with production grace delays. metrics may
// be nil to disable metric recording.
func NewLauncher(cat *catalog.Catalog, commander Commander, registry *Registry, log *slog.Logger, m *metrics.Metrics) *Launcher {
	return &Launcher{
		cat:             cat,
		commander:       commander,
		registry:        registry,
		log:             log,
		metrics:         m,
		UDPGrace:        500 * time.Millisecond,
		TCPGrace:        2 * time.Second,
		SDPPollInterval: 300 * time.Millisecond,
		SDPPollRetries:  10,
	}
}

// Launch starts the delivery mechanism for the request and returns the
// session descriptor. Errors are client-facing reasons.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Session, error) {
	if req.Protocol == ProtocolHLS {
		return l.launchHLS(req.Asset)
	}

	artifact, err := l.resolveSource(req)
	if err != nil {
		return nil, err
	}

	port, err := AllocatePort()
	if err != nil {
		return nil, err
	}

	sourcePath := l.cat.Path(artifact)
	session := &Session{Protocol: req.Protocol, Port: port, Filename: artifact.Filename()}

	switch req.Protocol {
	case ProtocolUDP:
		err = l.startPush(req.Protocol, port, pushArgs(sourcePath, fmt.Sprintf("udp://127.0.0.1:%d", port)))
		if err == nil {
			// Let the first frames flush before the client is told to tune in.
			time.Sleep(l.UDPGrace)
		}
	case ProtocolTCP:
		err = l.startPush(req.Protocol, port, pushArgs(sourcePath, fmt.Sprintf("tcp://127.0.0.1:%d?listen", port)))
		if err == nil {
			// The process must finish binding before the client dials in.
			time.Sleep(l.TCPGrace)
		}
	case ProtocolRTP:
		session.SDP, err = l.startRTP(port, sourcePath)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", req.Protocol)
	}
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.IncStreamsLaunched(string(req.Protocol))
	}
	l.log.Info("stream launched",
		slog.String("protocol", string(req.Protocol)),
		slog.Int("port", port),
		slog.String("file", session.Filename))
	return session, nil
}

// resolveSource picks the artifact to stream. An explicit quality/format
// must exist on storage; an unspecified one resolves to the highest
// available quality in the first format that has a file.
func (l *Launcher) resolveSource(req Request) (catalog.Artifact, error) {
	if req.Quality != "" && req.Format != "" {
		a := catalog.Artifact{Asset: req.Asset, Quality: req.Quality, Format: req.Format}
		if !fileExists(l.cat.Path(a)) {
			return catalog.Artifact{}, fmt.Errorf("file not found: %s", a.Filename())
		}
		return a, nil
	}

	maxQuality, ok := l.cat.MaxQuality(req.Asset)
	if !ok {
		return catalog.Artifact{}, fmt.Errorf("video not found: %s", req.Asset)
	}
	for _, format := range catalog.FormatPreference {
		a := catalog.Artifact{Asset: req.Asset, Quality: maxQuality, Format: format}
		if fileExists(l.cat.Path(a)) {
			return a, nil
		}
	}
	return catalog.Artifact{}, fmt.Errorf("no suitable format for %s at %s", req.Asset, maxQuality)
}

// startPush starts a push process and registers it. The process is reaped
// in the background so finished streams leave the registry.
func (l *Launcher) startPush(protocol Protocol, port int, args []string) error {
	cmd := l.commander.Command(args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start stream process: %w", err)
	}
	l.registry.AddProcess(protocol, port, cmd)

	go func() {
		_ = cmd.Wait()
		l.registry.Remove(protocol, port)
	}()
	return nil
}

// startRTP starts a session-described push and polls for the SDP file the
// process writes. On poll timeout the stream keeps running and the session
// is returned without SDP content (soft failure).
func (l *Launcher) startRTP(port int, sourcePath string) (string, error) {
	sdpPath := filepath.Join(os.TempDir(), fmt.Sprintf("mediasrv-%d.sdp", port))
	os.Remove(sdpPath)

	args := []string{
		"-re",
		"-i", sourcePath,
		"-an",
		"-f", "rtp",
		fmt.Sprintf("rtp://127.0.0.1:%d", port),
		"-sdp_file", sdpPath,
	}
	if err := l.startPush(ProtocolRTP, port, args); err != nil {
		return "", err
	}

	for i := 0; i < l.SDPPollRetries; i++ {
		if content, err := os.ReadFile(sdpPath); err == nil && len(content) > 0 {
			return string(content), nil
		}
		time.Sleep(l.SDPPollInterval)
	}

	l.log.Warn("sdp file not ready, returning stream without session description",
		slog.Int("port", port))
	return "", nil
}

// launchHLS starts an embedded file server rooted at the asset's packaging
// directory. The master manifest must already exist.
func (l *Launcher) launchHLS(asset string) (*Session, error) {
	masterPath := hls.MasterPath(l.cat.Dir(), asset)
	if !fileExists(masterPath) {
		return nil, fmt.Errorf("HLS playlist not found for: %s", asset)
	}

	port, err := AllocatePort()
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: NewFileServer(hls.AssetDir(l.cat.Dir(), asset), l.log, l.metrics),
	}
	l.registry.AddServer(ProtocolHLS, port, srv)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.log.Error("hls file server error", slog.Int("port", port), slog.String("error", err.Error()))
		}
		l.registry.Remove(ProtocolHLS, port)
	}()

	if l.metrics != nil {
		l.metrics.IncStreamsLaunched(string(ProtocolHLS))
	}
	l.log.Info("hls file server started", slog.String("asset", asset), slog.Int("port", port))
	return &Session{Protocol: ProtocolHLS, Port: port, Filename: "master.m3u8"}, nil
}

// pushArgs builds the real-time push command line for UDP and TCP delivery.
func pushArgs(sourcePath, target string) []string {
	return []string{
		"-re",
		"-i", sourcePath,
		"-f", "mpegts",
		target,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

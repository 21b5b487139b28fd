package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"mediasrv/internal/catalog"
	"mediasrv/internal/platform/logger"
	"mediasrv/internal/stream"
)

// fakeLauncher returns a canned session or error.
type fakeLauncher struct {
	session *stream.Session
	err     error
	lastReq stream.Request
}

func (f *fakeLauncher) Launch(_ context.Context, req stream.Request) (*stream.Session, error) {
	f.lastReq = req
	return f.session, f.err
}

// testCommander substitutes a short-lived process for ffmpeg.
type testCommander struct{}

func (testCommander) Command(...string) *exec.Cmd {
	return exec.Command("sleep", "1")
}

// startSession wires a handler to one end of a pipe and returns the client
// end plus a channel closed when the session finishes.
func startSession(t *testing.T, cat *catalog.Catalog, launcher Launcher) (net.Conn, chan struct{}) {
	t.Helper()
	h := NewHandler(cat, launcher, "Multimedia Server", logger.Nop(), nil)
	server, client := net.Pipe()

	done := make(chan struct{})
	go h.Handle(context.Background(), server, "test-session", func() { close(done) })

	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not finish")
		}
	})
	return client, done
}

func readReply(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return msg
}

func send(t *testing.T, conn net.Conn, msg string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := WriteFrame(conn, msg); err != nil {
		t.Fatalf("WriteFrame(%q): %v", msg, err)
	}
}

func TestHandler_greeting(t *testing.T) {
	client, _ := startSession(t, catalog.New(t.TempDir()), &fakeLauncher{})

	if got := readReply(t, client); got != "Welcome to the Multimedia Server" {
		t.Errorf("greeting = %q", got)
	}
}

func TestHandler_LIST_emptyCatalog(t *testing.T) {
	cat := catalog.New(t.TempDir())
	if err := cat.Index(); err != nil {
		t.Fatal(err)
	}
	client, _ := startSession(t, cat, &fakeLauncher{})
	readReply(t, client) // greeting

	send(t, client, "LIST")
	if got := readReply(t, client); got != "Available videos:\n" {
		t.Errorf("LIST on empty catalog = %q", got)
	}
}

func TestHandler_GET(t *testing.T) {
	cat := catalog.New(t.TempDir())
	cat.Add(catalog.Artifact{Asset: "demo", Quality: "720p", Format: "mp4"})
	client, _ := startSession(t, cat, &fakeLauncher{})
	readReply(t, client)

	send(t, client, "GET demo")
	if got := readReply(t, client); !strings.Contains(got, "Video: demo") {
		t.Errorf("GET demo = %q", got)
	}

	send(t, client, "GET ghost")
	if got := readReply(t, client); got != "Video not found: ghost" {
		t.Errorf("GET ghost = %q", got)
	}
}

func TestHandler_unknownCommand(t *testing.T) {
	client, _ := startSession(t, catalog.New(t.TempDir()), &fakeLauncher{})
	readReply(t, client)

	send(t, client, "FROB everything")
	if got := readReply(t, client); got != "Unknown command" {
		t.Errorf("reply = %q", got)
	}

	// Session stays open.
	send(t, client, "LIST")
	if got := readReply(t, client); !strings.HasPrefix(got, "Available videos:") {
		t.Errorf("session should stay open, got %q", got)
	}
}

func TestHandler_Bye_closesSession(t *testing.T) {
	client, done := startSession(t, catalog.New(t.TempDir()), &fakeLauncher{})
	readReply(t, client)

	send(t, client, "bYe") // case-insensitive
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after Bye")
	}
}

func TestHandler_abruptDisconnect(t *testing.T) {
	client, done := startSession(t, catalog.New(t.TempDir()), &fakeLauncher{})
	readReply(t, client)

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after client hangup")
	}
}

func TestHandler_PLAY_defaultsToUDP(t *testing.T) {
	fl := &fakeLauncher{session: &stream.Session{Protocol: stream.ProtocolUDP, Port: 40000, Filename: "demo-720p.mp4"}}
	client, _ := startSession(t, catalog.New(t.TempDir()), fl)
	readReply(t, client)

	send(t, client, "PLAY demo")
	if got := readReply(t, client); got != "STREAM:40000:demo-720p.mp4:UDP" {
		t.Errorf("reply = %q", got)
	}
	if fl.lastReq.Protocol != stream.ProtocolUDP || fl.lastReq.Asset != "demo" {
		t.Errorf("request = %+v", fl.lastReq)
	}
	if fl.lastReq.Quality != "" || fl.lastReq.Format != "" {
		t.Errorf("bare asset should leave quality/format empty: %+v", fl.lastReq)
	}
}

func TestHandler_PLAY_explicitArtifactSpec(t *testing.T) {
	fl := &fakeLauncher{session: &stream.Session{Protocol: stream.ProtocolTCP, Port: 40001, Filename: "demo-480p.avi"}}
	client, _ := startSession(t, catalog.New(t.TempDir()), fl)
	readReply(t, client)

	send(t, client, "PLAY demo-480p.avi PROTOCOL=TCP")
	readReply(t, client)
	want := stream.Request{Asset: "demo", Quality: "480p", Format: "avi", Protocol: stream.ProtocolTCP}
	if fl.lastReq != want {
		t.Errorf("request = %+v, want %+v", fl.lastReq, want)
	}
}

func TestHandler_PLAY_unsupportedProtocol(t *testing.T) {
	client, _ := startSession(t, catalog.New(t.TempDir()), &fakeLauncher{})
	readReply(t, client)

	send(t, client, "PLAY demo PROTOCOL=QUIC")
	if got := readReply(t, client); got != "ERROR: unsupported protocol: QUIC" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandler_PLAY_launchError(t *testing.T) {
	fl := &fakeLauncher{err: errors.New("video not found: demo")}
	client, _ := startSession(t, catalog.New(t.TempDir()), fl)
	readReply(t, client)

	send(t, client, "PLAY demo")
	if got := readReply(t, client); got != "ERROR: video not found: demo" {
		t.Errorf("reply = %q", got)
	}
}

func TestHandler_PLAY_sdpDescriptor(t *testing.T) {
	sdp := "v=0\no=- 0 0 IN IP4 127.0.0.1\n"
	fl := &fakeLauncher{session: &stream.Session{
		Protocol: stream.ProtocolRTP, Port: 40002, Filename: "demo-720p.mp4", SDP: sdp,
	}}
	client, _ := startSession(t, catalog.New(t.TempDir()), fl)
	readReply(t, client)

	send(t, client, "PLAY demo PROTOCOL=RTP/UDP")
	got := readReply(t, client)
	prefix := "STREAM:40002:demo-720p.mp4:RTP/UDP:SDP:"
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("reply = %q", got)
	}
	decoded, err := base64.StdEncoding.DecodeString(got[len(prefix):])
	if err != nil || string(decoded) != sdp {
		t.Errorf("sdp payload = %q err=%v", decoded, err)
	}
}

// End-to-end through the real launcher: PLAY an artifact that exists and a
// segmented request with no manifest.
func TestHandler_PLAY_endToEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "demo-720p.mp4"), []byte("src"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := catalog.New(dir)
	if err := cat.Index(); err != nil {
		t.Fatal(err)
	}
	registry := stream.NewRegistry(logger.Nop())
	defer registry.Shutdown(context.Background())
	launcher := stream.NewLauncher(cat, testCommander{}, registry, logger.Nop(), nil)
	launcher.UDPGrace = time.Millisecond

	client, _ := startSession(t, cat, launcher)
	readReply(t, client)

	send(t, client, "PLAY demo PROTOCOL=HLS")
	if got := readReply(t, client); !strings.Contains(got, "HLS playlist not found for: demo") {
		t.Errorf("reply = %q", got)
	}

	send(t, client, "PLAY demo-720p.mp4 PROTOCOL=UDP")
	got := readReply(t, client)
	re := regexp.MustCompile(`^STREAM:(\d+):demo-720p\.mp4:UDP$`)
	m := re.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("reply = %q", got)
	}
	if port, err := strconv.Atoi(m[1]); err != nil || port <= 0 || port > 65535 {
		t.Errorf("port %q not valid", m[1])
	}
}

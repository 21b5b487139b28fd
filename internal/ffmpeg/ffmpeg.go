// Package ffmpeg wraps the external ffmpeg/ffprobe binaries behind a narrow
// capability interface so orchestration code can be tested with a fake.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transcoder is the capability the coordinator and packager depend on.
// Implementations produce files on storage; callers validate the results.
type Transcoder interface {
	// Transcode produces target from source, scaled to the given pixel
	// height with the given video bitrate (ffmpeg syntax, e.g. "2800k").
	Transcode(ctx context.Context, source, target string, height int, bitrate string) error

	// Probe returns the media duration of source.
	Probe(ctx context.Context, source string) (time.Duration, error)

	// Segment produces fixed-duration HLS segments plus a playlist.m3u8
	// sub-manifest in outDir, scaled to height at the given bitrate.
	// Keyframes are forced on segment boundaries so every segment is
	// independently decodable.
	Segment(ctx context.Context, source, outDir string, height int, bitrate string) error
}

// SegmentSeconds is the fixed HLS segment duration.
const SegmentSeconds = 4

// Runner runs the real ffmpeg and ffprobe binaries.
type Runner struct {
	FFmpegPath  string
	FFprobePath string
	Log         *slog.Logger
}

// NewRunner returns a Runner using the given binary paths.
func NewRunner(ffmpegPath, ffprobePath string, log *slog.Logger) *Runner {
	return &Runner{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Log: log}
}

// Transcode implements Transcoder.Transcode.
func (r *Runner) Transcode(ctx context.Context, source, target string, height int, bitrate string) error {
	args := []string{
		"-y",
		"-i", source,
		"-vf", scaleFilter(height),
		"-c:v", "libx264",
		"-b:v", bitrate,
		"-preset", "fast",
		"-c:a", "aac",
		target,
	}
	return r.run(ctx, r.FFmpegPath, args)
}

// Probe implements Transcoder.Probe using ffprobe.
func (r *Runner) Probe(ctx context.Context, source string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, r.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", source, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", source, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Segment implements Transcoder.Segment.
func (r *Runner) Segment(ctx context.Context, source, outDir string, height int, bitrate string) error {
	args := []string{
		"-y",
		"-i", source,
		"-vf", scaleFilter(height),
		"-c:v", "libx264",
		"-b:v", bitrate,
		"-preset", "fast",
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", SegmentSeconds),
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", strconv.Itoa(SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "segment%03d.ts"),
		filepath.Join(outDir, "playlist.m3u8"),
	}
	return r.run(ctx, r.FFmpegPath, args)
}

// Command returns an unstarted command for the ffmpeg binary with the given
// arguments. Used by the stream launcher for long-running push processes
// that outlive the call.
func (r *Runner) Command(args ...string) *exec.Cmd {
	return exec.Command(r.FFmpegPath, args...)
}

func (r *Runner) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if r.Log != nil {
		r.Log.Debug("running transcoder", slog.String("bin", bin), slog.String("args", strings.Join(args, " ")))
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, lastLine(stderr.String()))
	}
	return nil
}

// scaleFilter keeps the aspect ratio and forces an even width, which x264
// requires.
func scaleFilter(height int) string {
	return fmt.Sprintf("scale=-2:%d", height)
}

// lastLine trims ffmpeg's noisy stderr down to its final line for error
// messages.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

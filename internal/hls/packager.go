// Package hls pre-generates multi-rendition segment sets and a master
// manifest per asset for segmented delivery.
package hls

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mediasrv/internal/catalog"
	"mediasrv/internal/ffmpeg"
)

// ladder maps each quality to its segmented-delivery video bitrate in kbps.
// Deliberately separate from the transcode coordinator's table: segmented
// renditions get more headroom.
var ladder = map[catalog.Quality]int{
	"144p":  300,
	"240p":  600,
	"360p":  1000,
	"480p":  2000,
	"720p":  3500,
	"1080p": 6000,
}

const defaultLadderKbps = 1200

// LadderKbps returns the segmented-delivery bitrate for a quality in kbps.
func LadderKbps(q catalog.Quality) int {
	if kbps, ok := ladder[q]; ok {
		return kbps
	}
	return defaultLadderKbps
}

// Packager produces per-asset segment directories and master manifests.
type Packager struct {
	cat *catalog.Catalog
	tc  ffmpeg.Transcoder
	log *slog.Logger
}

// NewPackager returns a Packager over the given catalog and transcoder.
func NewPackager(cat *catalog.Catalog, tc ffmpeg.Transcoder, log *slog.Logger) *Packager {
	return &Packager{cat: cat, tc: tc, log: log}
}

// AssetDir returns the packaging directory for an asset.
func AssetDir(videoDir, asset string) string {
	return filepath.Join(videoDir, asset+"_hls")
}

// MasterPath returns the master manifest path for an asset.
func MasterPath(videoDir, asset string) string {
	return filepath.Join(AssetDir(videoDir, asset), "master.m3u8")
}

// PackageAll packages every asset in the catalog that does not already have
// a master manifest. Per-asset errors are logged and do not stop the pass.
func (p *Packager) PackageAll(ctx context.Context) {
	for _, asset := range p.cat.Assets() {
		if err := p.Package(ctx, asset); err != nil {
			p.log.Warn("hls packaging failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()))
		}
	}
}

// Package produces the segment set and master manifest for one asset.
// Packaging is skipped when the master manifest already exists. Errors for
// one quality do not prevent other qualities or the master manifest; the
// master simply omits qualities whose sub-manifest is missing.
func (p *Packager) Package(ctx context.Context, asset string) error {
	masterPath := MasterPath(p.cat.Dir(), asset)
	if _, err := os.Stat(masterPath); err == nil {
		p.log.Debug("hls packaging skipped, manifest exists", slog.String("asset", asset))
		return nil
	}

	qualities, _, ok := p.cat.Snapshot(asset)
	if !ok || len(qualities) == 0 {
		return fmt.Errorf("asset %s has no qualities", asset)
	}

	source, ok := p.findSource(asset, qualities[len(qualities)-1])
	if !ok {
		return fmt.Errorf("no source artifact for %s", asset)
	}

	if duration, err := p.tc.Probe(ctx, source); err == nil {
		p.log.Info("hls packaging started",
			slog.String("asset", asset),
			slog.Duration("duration", duration),
			slog.Int("renditions", len(qualities)))
	}

	assetDir := AssetDir(p.cat.Dir(), asset)
	// Highest quality first.
	for i := len(qualities) - 1; i >= 0; i-- {
		q := qualities[i]
		qualityDir := filepath.Join(assetDir, string(q))
		if err := os.MkdirAll(qualityDir, 0o755); err != nil {
			p.log.Warn("hls rendition skipped",
				slog.String("asset", asset),
				slog.String("quality", string(q)),
				slog.String("error", err.Error()))
			continue
		}
		bitrate := fmt.Sprintf("%dk", LadderKbps(q))
		if err := p.tc.Segment(ctx, source, qualityDir, q.Height(), bitrate); err != nil {
			p.log.Warn("hls rendition failed",
				slog.String("asset", asset),
				slog.String("quality", string(q)),
				slog.String("error", err.Error()))
		}
	}

	master := p.buildMaster(assetDir, qualities)
	if err := os.WriteFile(masterPath, []byte(master), 0o644); err != nil {
		return fmt.Errorf("write master manifest for %s: %w", asset, err)
	}

	p.log.Info("hls packaging complete", slog.String("asset", asset))
	return nil
}

// buildMaster renders the master manifest: one entry per quality whose
// sub-manifest actually exists, highest quality first.
func (p *Packager) buildMaster(assetDir string, qualities []catalog.Quality) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for i := len(qualities) - 1; i >= 0; i-- {
		q := qualities[i]
		sub := filepath.Join(assetDir, string(q), "playlist.m3u8")
		if _, err := os.Stat(sub); err != nil {
			continue
		}
		height := q.Height()
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			LadderKbps(q)*1000, widthFor(height), height))
		b.WriteString(string(q) + "/playlist.m3u8\n")
	}

	return b.String()
}

// findSource returns the asset's source artifact path at the given quality,
// in format-preference order.
func (p *Packager) findSource(asset string, q catalog.Quality) (string, bool) {
	for _, format := range catalog.FormatPreference {
		path := p.cat.Path(catalog.Artifact{Asset: asset, Quality: q, Format: format})
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// widthFor derives a 16:9 width from the rendition height, rounded to even.
func widthFor(height int) int {
	return int(math.Round(float64(height)*16.0/9.0/2.0)) * 2
}

// Package transcode fills catalog gaps: for every asset it produces the
// missing quality/format artifacts below the asset's highest available
// quality, under a cross-process lock per target artifact.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"mediasrv/internal/catalog"
	"mediasrv/internal/ffmpeg"
	"mediasrv/internal/platform/metrics"
)

// bitrates maps each quality to its video bitrate ceiling for plain
// transcodes. Unknown qualities fall back to defaultBitrate.
var bitrates = map[catalog.Quality]string{
	"144p":  "200k",
	"240p":  "400k",
	"360p":  "800k",
	"480p":  "1400k",
	"720p":  "2800k",
	"1080p": "5000k",
}

const defaultBitrate = "1000k"

// BitrateFor returns the transcode bitrate for a quality.
func BitrateFor(q catalog.Quality) string {
	if b, ok := bitrates[q]; ok {
		return b
	}
	return defaultBitrate
}

// Coordinator drives the backfill pass.
type Coordinator struct {
	cat     *catalog.Catalog
	locks   *LockTable
	tc      ffmpeg.Transcoder
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewCoordinator returns a Coordinator. metrics may be nil to disable
// metric recording (e.g. in tests).
func NewCoordinator(cat *catalog.Catalog, locks *LockTable, tc ffmpeg.Transcoder, log *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{cat: cat, locks: locks, tc: tc, log: log, metrics: m}
}

// Backfill attempts to generate every missing (quality <= max quality,
// format) artifact for every asset in the catalog. Each combination is
// attempted independently; failures are logged and never abort the loop.
func (c *Coordinator) Backfill(ctx context.Context) {
	for _, asset := range c.cat.Assets() {
		maxQuality, ok := c.cat.MaxQuality(asset)
		if !ok {
			continue
		}
		maxIdx := catalog.QualityIndex(maxQuality)

		for i := 0; i <= maxIdx; i++ {
			for _, format := range catalog.Formats {
				// Existence is checked against storage inside Generate: the
				// catalog's quality and format sets are tracked per asset,
				// not per combination, so they cannot answer "is this exact
				// artifact present".
				target := catalog.Artifact{Asset: asset, Quality: catalog.Qualities[i], Format: format}
				generated, err := c.Generate(ctx, target, maxQuality)
				if err != nil {
					c.log.Warn("backfill: artifact skipped",
						slog.String("artifact", target.Filename()),
						slog.String("error", err.Error()))
					if c.metrics != nil {
						c.metrics.IncTranscodeFailures()
					}
					continue
				}
				if generated {
					c.log.Info("backfill: artifact generated", slog.String("artifact", target.Filename()))
					if c.metrics != nil {
						c.metrics.IncTranscodes()
					}
				}
			}
		}
	}
}

// Generate produces one artifact from the asset's source at sourceQuality.
// It returns (false, nil) when nothing needed doing: the artifact already
// exists on storage, or another holder owns the transcode lock. The lock is
// released on every exit path.
func (c *Coordinator) Generate(ctx context.Context, target catalog.Artifact, sourceQuality catalog.Quality) (bool, error) {
	targetPath := c.cat.Path(target)

	if fileExists(targetPath) {
		return false, nil
	}

	lock, held, err := c.locks.TryAcquire(target)
	if err != nil {
		return false, err
	}
	if !held {
		// Another instance or worker is producing this artifact.
		return false, nil
	}
	defer lock.Release()

	sourcePath, ok := c.findSource(target.Asset, sourceQuality)
	if !ok {
		return false, fmt.Errorf("no usable source for %s at %s", target.Asset, sourceQuality)
	}

	height := target.Quality.Height()
	if err := c.tc.Transcode(ctx, sourcePath, targetPath, height, BitrateFor(target.Quality)); err != nil {
		os.Remove(targetPath)
		return false, fmt.Errorf("conversion failed for %s: %w", target.Filename(), err)
	}

	info, err := os.Stat(targetPath)
	if err != nil || info.Size() == 0 {
		os.Remove(targetPath)
		return false, fmt.Errorf("conversion failed for %s: empty or missing output", target.Filename())
	}

	c.cat.Add(target)
	return true, nil
}

// findSource returns the path of the asset's artifact at sourceQuality in
// the first format (by preference order) that exists on storage.
func (c *Coordinator) findSource(asset string, sourceQuality catalog.Quality) (string, bool) {
	for _, format := range catalog.FormatPreference {
		candidate := catalog.Artifact{Asset: asset, Quality: sourceQuality, Format: format}
		path := c.cat.Path(candidate)
		if fileExists(path) {
			return path, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

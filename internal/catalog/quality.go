package catalog

import (
	"fmt"
	"strings"
)

// Quality is a video rendition height label, e.g. "720p".
type Quality string

// Format is a container format extension, e.g. "mp4".
type Format string

// Qualities is the fixed set of supported qualities, lowest first.
// Comparison between qualities is by position in this slice.
var Qualities = []Quality{"144p", "240p", "360p", "480p", "720p", "1080p"}

// Formats is the fixed set of supported container formats.
// FormatPreference is the order used when picking a transcode source.
var (
	Formats          = []Format{"mp4", "wav", "avi"}
	FormatPreference = []Format{"mp4", "avi", "wav"}
)

// QualityIndex returns the position of q in Qualities, or -1 if q is not
// a supported quality.
func QualityIndex(q Quality) int {
	for i, known := range Qualities {
		if known == q {
			return i
		}
	}
	return -1
}

// ValidFormat reports whether f is a supported container format.
func ValidFormat(f Format) bool {
	for _, known := range Formats {
		if known == f {
			return true
		}
	}
	return false
}

// Height returns the pixel height encoded in the quality label ("720p" -> 720),
// or 0 if the label is not a supported quality.
func (q Quality) Height() int {
	if QualityIndex(q) < 0 {
		return 0
	}
	var h int
	fmt.Sscanf(string(q), "%d", &h)
	return h
}

// Artifact identifies one concrete file: an asset at a specific quality in a
// specific format. Its filename form doubles as the transcode lock key.
type Artifact struct {
	Asset   string
	Quality Quality
	Format  Format
}

// Filename renders the artifact's storage filename, "asset-quality.format".
func (a Artifact) Filename() string {
	return fmt.Sprintf("%s-%s.%s", a.Asset, a.Quality, a.Format)
}

// ParseFilename splits a storage filename into its artifact triple.
// The quality token sits between the last '-' and the last '.', the format
// after the last '.', the asset name before the last '-'. Filenames with
// missing or out-of-order delimiters, or with tokens outside the supported
// enumerations, return ok=false.
func ParseFilename(name string) (Artifact, bool) {
	lastDash := strings.LastIndex(name, "-")
	lastDot := strings.LastIndex(name, ".")

	if lastDash == -1 || lastDot == -1 || lastDot <= lastDash {
		return Artifact{}, false
	}

	a := Artifact{
		Asset:   name[:lastDash],
		Quality: Quality(name[lastDash+1 : lastDot]),
		Format:  Format(name[lastDot+1:]),
	}
	if a.Asset == "" || QualityIndex(a.Quality) < 0 || !ValidFormat(a.Format) {
		return Artifact{}, false
	}
	return a, true
}

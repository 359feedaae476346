package variant

import (
	"strings"

	"github.com/alanbriolat/media-fetch/generic"
)

// Codec labels known to play everywhere. Labels are normalised with normaliseCodec first.
var safeCodecs = generic.NewSet(
	"h264",
	"avc",
	"avc1",
	"h265",
	"hevc",
	"bytevc1",
	"hvc1",
	"hev1",
)

// Proprietary codecs that common players cannot decode.
var problematicCodecs = generic.NewSet(
	"bytevc2",
)

// normaliseCodec lower-cases a codec label and strips any profile suffix, so "avc1.64001F" becomes "avc1".
func normaliseCodec(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if i := strings.IndexByte(label, '.'); i >= 0 {
		label = label[:i]
	}
	return label
}

// IsCompatibleCodec reports whether a candidate with this codec label is in the compatible tier. An empty label is
// compatible, as is any label not known to be problematic.
func IsCompatibleCodec(label string) bool {
	codec := normaliseCodec(label)
	if codec == "" || safeCodecs.Contains(codec) {
		return true
	}
	return !problematicCodecs.Contains(codec)
}

// IsKnownSafeCodec reports whether the codec label is one of the known-safe labels.
func IsKnownSafeCodec(label string) bool {
	return safeCodecs.Contains(normaliseCodec(label))
}

// watermarkMarkers maps a watermarked URL fragment to its unmarked counterpart.
var watermarkMarkers = []struct {
	marked   string
	unmarked string
}{
	{"playwm", "play"},
}

// StripWatermark rewrites known watermark markers in a fallback URL. It is a pure string substitution.
func StripWatermark(u string) string {
	for _, m := range watermarkMarkers {
		u = strings.ReplaceAll(u, m.marked, m.unmarked)
	}
	return u
}

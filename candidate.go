package media_fetch

import (
	"context"
	"strings"
)

// A MediaCandidate is one offered variant of a piece of media, as produced by a platform-specific mapper.
type MediaCandidate struct {
	URL string `json:"url,omitempty"`
	// Bitrate in bits per second, 0 if unknown.
	Bitrate int64 `json:"bitrate,omitempty"`
	// IsHighEfficiencyCodec is true for HEVC-class streams, which need device support.
	IsHighEfficiencyCodec bool `json:"is_high_efficiency_codec,omitempty"`
	// FrameRate in frames per second, 0 if unknown.
	FrameRate int `json:"frame_rate,omitempty"`
	// CodecLabel is the free-text codec name given by the platform (e.g. "h264", "bytevc1").
	CodecLabel string `json:"codec_label,omitempty"`
	// QualityLabel is the free-text resolution or quality gear name (e.g. "1080p", "normal_720_0").
	QualityLabel string `json:"quality_label,omitempty"`
	// SourceTag names the upstream field the candidate came from, for diagnostics.
	SourceTag string `json:"source_tag,omitempty"`
	// SizeBytes is the advertised content size, 0 if unknown.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// HasURL returns true if the candidate carries a non-blank URL.
func (c MediaCandidate) HasURL() bool {
	return strings.TrimSpace(c.URL) != ""
}

// Candidates is everything a Source offers for one post: the variant list plus loose fallback URLs taken from other
// fields of the upstream response (e.g. a watermarked play address).
type Candidates struct {
	Platform     Platform         `json:"platform,omitempty"`
	ID           string           `json:"id,omitempty"`
	Title        string           `json:"title,omitempty"`
	Ext          string           `json:"ext,omitempty"`
	Variants     []MediaCandidate `json:"variants"`
	FallbackURLs []string         `json:"fallback_urls,omitempty"`
}

// A Source is a matched link that can produce its media candidates.
type Source interface {
	// URL should return the canonical URL for this source. It is assumed that the Provider.Match that created the
	// Source would successfully match this canonical URL.
	URL() string
	Platform() Platform
	// Candidates fetches the variants on offer; blocking, so it takes a context.
	Candidates(ctx context.Context) (*Candidates, error)
}

// Package variant picks the best playable media variant from a platform's candidate list.
package variant

import (
	"sort"
	"strings"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
)

type Tier string

const (
	// TierCompatible is a candidate with a compatible codec.
	TierCompatible Tier = "compatible"
	// TierIncompatible is a last-resort candidate whose codec may not play.
	TierIncompatible Tier = "incompatible"
	// TierFallback is a loose fallback URL, used when no candidate has a URL.
	TierFallback Tier = "fallback"
)

type RejectReason string

const (
	RejectNoURL             RejectReason = "no url"
	RejectIncompatibleCodec RejectReason = "incompatible codec"
	RejectEfficientCodec    RejectReason = "efficient codec not supported by device"
)

// A Rejection records a candidate that was not considered and why.
type Rejection struct {
	Candidate media_fetch.MediaCandidate
	Reason    RejectReason
}

// A Selection is the chosen variant plus diagnostics.
type Selection struct {
	Candidate media_fetch.MediaCandidate
	// URL is the chosen URL; never blank.
	URL  string
	Tier Tier
	// Degraded explains why the selection is a compromise; empty if it is not.
	Degraded string
	Rejected []Rejection
	// Alternatives are the other usable URLs in preference order, for CDN fallback.
	Alternatives []string
}

// IsDegraded returns true if the selection had to fall back past the compatible tier.
func (s Selection) IsDegraded() bool {
	return s.Degraded != ""
}

// URLs returns the chosen URL followed by the alternatives, without duplicates.
func (s Selection) URLs() []string {
	seen := generic.NewSet[string]()
	urls := make([]string, 0, 1+len(s.Alternatives))
	for _, u := range append([]string{s.URL}, s.Alternatives...) {
		if seen.Add(u) {
			urls = append(urls, u)
		}
	}
	return urls
}

type ranked struct {
	media_fetch.MediaCandidate
	index int
}

// SelectBest chooses one playable URL. Compatible candidates are preferred; if there are none, incompatible ones
// are used as a degraded last resort. Efficient-codec candidates are dropped when the device cannot decode them,
// unless that would leave nothing. The working set is ordered by efficient codec (only when supported), bitrate,
// then frame rate, with input order breaking ties. When no candidate has a URL, the first non-blank fallback URL is
// returned with watermark markers rewritten. None means nothing usable exists anywhere.
func SelectBest(candidates []media_fetch.MediaCandidate, fallbackURLs []string, supportsEfficient bool) generic.Option[Selection] {
	var sel Selection
	var compatible, incompatible []ranked
	for i, c := range candidates {
		switch {
		case !c.HasURL():
			sel.Rejected = append(sel.Rejected, Rejection{c, RejectNoURL})
		case IsCompatibleCodec(c.CodecLabel):
			compatible = append(compatible, ranked{c, i})
		default:
			incompatible = append(incompatible, ranked{c, i})
		}
	}

	working := compatible
	sel.Tier = TierCompatible
	if len(compatible) == 0 && len(incompatible) > 0 {
		working = incompatible
		sel.Tier = TierIncompatible
		sel.Degraded = "only incompatible codecs on offer"
	} else {
		for _, r := range incompatible {
			sel.Rejected = append(sel.Rejected, Rejection{r.MediaCandidate, RejectIncompatibleCodec})
		}
	}

	if !supportsEfficient {
		var kept, dropped []ranked
		for _, r := range working {
			if r.IsHighEfficiencyCodec {
				dropped = append(dropped, r)
			} else {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			working = kept
			for _, r := range dropped {
				sel.Rejected = append(sel.Rejected, Rejection{r.MediaCandidate, RejectEfficientCodec})
			}
		}
	}

	if len(working) > 0 {
		sort.SliceStable(working, func(i, j int) bool {
			return less(working[i], working[j], supportsEfficient)
		})
		sel.Candidate = working[0].MediaCandidate
		sel.URL = strings.TrimSpace(working[0].URL)
		for _, r := range working[1:] {
			sel.Alternatives = append(sel.Alternatives, strings.TrimSpace(r.URL))
		}
		sel.Alternatives = append(sel.Alternatives, cleanFallbacks(fallbackURLs)...)
		return generic.Some(sel)
	}

	fallbacks := cleanFallbacks(fallbackURLs)
	if len(fallbacks) == 0 {
		return generic.None[Selection]()
	}
	sel.Tier = TierFallback
	sel.URL = fallbacks[0]
	sel.Candidate = media_fetch.MediaCandidate{URL: sel.URL, SourceTag: string(TierFallback)}
	sel.Alternatives = fallbacks[1:]
	if len(candidates) > 0 {
		sel.Degraded = "no candidate has a url"
	}
	return generic.Some(sel)
}

func less(a, b ranked, supportsEfficient bool) bool {
	if supportsEfficient && a.IsHighEfficiencyCodec != b.IsHighEfficiencyCodec {
		return a.IsHighEfficiencyCodec
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate > b.Bitrate
	}
	if a.FrameRate != b.FrameRate {
		return a.FrameRate > b.FrameRate
	}
	return a.index < b.index
}

// cleanFallbacks drops blank fallback URLs and strips watermark markers from the rest.
func cleanFallbacks(urls []string) []string {
	var res []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			res = append(res, StripWatermark(u))
		}
	}
	return res
}

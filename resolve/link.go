package resolve

import media_fetch "github.com/alanbriolat/media-fetch"

// StopReason records why redirect resolution ended.
type StopReason string

const (
	// StopTerminal means a non-redirect response was reached.
	StopTerminal StopReason = "terminal"
	// StopNoLocation means a redirect response had no Location header.
	StopNoLocation StopReason = "no_location"
	// StopFinalForm means the platform recognised the URL as already usable.
	StopFinalForm StopReason = "final_form"
	// StopLimit means the redirect limit was reached.
	StopLimit StopReason = "limit"
	// StopError means a request failed; URL is the best one found before the failure.
	StopError StopReason = "error"
)

// A CanonicalLink is the result of resolving a short link. It is never mutated once produced.
type CanonicalLink struct {
	ShortURL  string     `json:"short_url"`
	URL       string     `json:"url"`
	Redirects int        `json:"redirects"`
	Stop      StopReason `json:"stop"`
	// Err describes the failure when Stop is StopError.
	Err string `json:"error,omitempty"`
}

// Platform classifies the resolved URL.
func (l CanonicalLink) Platform() media_fetch.Platform {
	return media_fetch.Classify(l.URL)
}

// Degraded returns true if resolution ended on an error and URL may not be canonical.
func (l CanonicalLink) Degraded() bool {
	return l.Stop == StopError
}

// A Store persists resolved links across process restarts. GetLink returns (nil, nil) for an unknown link.
type Store interface {
	GetLink(shortURL string) (*CanonicalLink, error)
	PutLink(link *CanonicalLink) error
}

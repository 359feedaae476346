package media_fetch

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	DesktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	MobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
)

// A Profile shapes the HTTP requests made on behalf of one Platform.
type Profile struct {
	UserAgent string
	Referer   string
	Headers   map[string]string
	// ResolveMethod is the method used when probing short links; empty means HEAD. Platforms that only serve the
	// redirect target on full requests use GET, which also sends Referer.
	ResolveMethod string
	// FinalForm reports whether a URL is already usable, so redirect resolution can stop early. May be nil.
	FinalForm func(u *url.URL) bool
}

// Apply sets the profile's User-Agent, Referer and extra headers on the request.
func (p Profile) Apply(req *http.Request) {
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
}

// ApplyProbe sets the headers used for a redirect probe: the User-Agent always, the Referer only for GET probes.
func (p Profile) ApplyProbe(req *http.Request) {
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.ProbeMethod() == http.MethodGet && p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}
}

func (p Profile) ProbeMethod() string {
	if p.ResolveMethod == "" {
		return http.MethodHead
	}
	return p.ResolveMethod
}

// IsFinal returns true if the profile recognises u as a canonical permalink.
func (p Profile) IsFinal(u *url.URL) bool {
	return p.FinalForm != nil && u != nil && p.FinalForm(u)
}

// Override replaces non-empty fields of p with those of other, merging headers.
func (p Profile) Override(other Profile) Profile {
	if other.UserAgent != "" {
		p.UserAgent = other.UserAgent
	}
	if other.Referer != "" {
		p.Referer = other.Referer
	}
	if other.ResolveMethod != "" {
		p.ResolveMethod = other.ResolveMethod
	}
	if other.FinalForm != nil {
		p.FinalForm = other.FinalForm
	}
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(p.Headers)+len(other.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		p.Headers = headers
	}
	return p
}

// Profiles is the per-platform request configuration table.
type Profiles map[Platform]Profile

// For returns the profile of a platform, or the PlatformUnknown profile if there is none.
func (ps Profiles) For(platform Platform) Profile {
	if p, ok := ps[platform]; ok {
		return p
	}
	return ps[PlatformUnknown]
}

// ForURL is a shortcut for For(Classify(rawURL)).
func (ps Profiles) ForURL(rawURL string) Profile {
	return ps.For(Classify(rawURL))
}

// With returns a copy of the table with overrides applied on top.
func (ps Profiles) With(overrides map[Platform]Profile) Profiles {
	res := make(Profiles, len(ps))
	for k, v := range ps {
		res[k] = v
	}
	for k, v := range overrides {
		res[k] = res[k].Override(v)
	}
	return res
}

func pathContains(segments ...string) func(*url.URL) bool {
	return func(u *url.URL) bool {
		for _, s := range segments {
			if strings.Contains(u.Path, s) {
				return true
			}
		}
		return false
	}
}

func hasQuery(keys ...string) func(*url.URL) bool {
	return func(u *url.URL) bool {
		q := u.Query()
		for _, k := range keys {
			if q.Get(k) != "" {
				return true
			}
		}
		return false
	}
}

func anyOf(fs ...func(*url.URL) bool) func(*url.URL) bool {
	return func(u *url.URL) bool {
		for _, f := range fs {
			if f(u) {
				return true
			}
		}
		return false
	}
}

// DefaultProfiles returns a fresh copy of the built-in request configuration.
func DefaultProfiles() Profiles {
	return Profiles{
		PlatformUnknown: {
			UserAgent: DesktopUserAgent,
		},
		PlatformDouyin: {
			UserAgent: MobileUserAgent,
			Referer:   "https://www.douyin.com/",
			FinalForm: pathContains("/video/", "/note/", "/share/slides/"),
		},
		PlatformTikTok: {
			UserAgent: MobileUserAgent,
			Referer:   "https://www.tiktok.com/",
			FinalForm: pathContains("/video/", "/photo/"),
		},
		PlatformKuaishou: {
			UserAgent:     MobileUserAgent,
			Referer:       "https://www.kuaishou.com/",
			ResolveMethod: http.MethodGet,
			FinalForm:     anyOf(hasQuery("photoId"), pathContains("/short-video/", "/fw/photo/")),
		},
		PlatformBilibili: {
			UserAgent: DesktopUserAgent,
			Referer:   "https://www.bilibili.com/",
			Headers:   map[string]string{"Origin": "https://www.bilibili.com"},
			FinalForm: pathContains("/video/"),
		},
		PlatformXiaohongshu: {
			UserAgent: MobileUserAgent,
			Referer:   "https://www.xiaohongshu.com/",
			FinalForm: anyOf(hasQuery("xsec_token"), pathContains("/discovery/item/")),
		},
		PlatformWeibo: {
			UserAgent: DesktopUserAgent,
			Referer:   "https://weibo.com/",
		},
		PlatformInstagram: {
			UserAgent: DesktopUserAgent,
			Referer:   "https://www.instagram.com/",
			FinalForm: pathContains("/p/", "/reel/"),
		},
		PlatformTwitter: {
			UserAgent: DesktopUserAgent,
			FinalForm: pathContains("/status/"),
		},
		PlatformYouTube: {
			UserAgent: DesktopUserAgent,
			FinalForm: anyOf(hasQuery("v"), pathContains("/shorts/")),
		},
		PlatformPipixia: {
			UserAgent: MobileUserAgent,
			Referer:   "https://h5.pipix.com/",
			FinalForm: pathContains("/item/"),
		},
		PlatformXigua: {
			UserAgent: DesktopUserAgent,
			Referer:   "https://www.ixigua.com/",
		},
	}
}

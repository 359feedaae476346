// Package resolve follows redirect chains from short links to canonical URLs.
package resolve

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	media_fetch "github.com/alanbriolat/media-fetch"
)

const (
	DefaultMaxRedirects = 10
	DefaultCacheSize    = 500
	DefaultTimeout      = 5 * time.Second
)

// Bodies of GET probes are drained up to this size so the connection can be reused.
const maxDrainBytes = 64 << 10

type Option func(r *Resolver)

// WithClient sets the HTTP client used for probes. The client is copied; its redirect policy and timeout are
// replaced.
func WithClient(client *http.Client) Option {
	return func(r *Resolver) {
		c := *client
		r.client = &c
	}
}

func WithProfiles(profiles media_fetch.Profiles) Option {
	return func(r *Resolver) {
		r.profiles = profiles
	}
}

func WithCacheSize(size int) Option {
	return func(r *Resolver) {
		r.cacheSize = size
	}
}

// WithStore adds a persistent second-level cache consulted after the in-memory cache.
func WithStore(store Store) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

func WithMaxRedirects(max int) Option {
	return func(r *Resolver) {
		r.maxRedirects = max
	}
}

// A Resolver turns short links into CanonicalLink values. It is safe for concurrent use.
type Resolver struct {
	client       *http.Client
	profiles     media_fetch.Profiles
	cacheSize    int
	cache        *lru.Cache[string, CanonicalLink]
	store        Store
	group        singleflight.Group
	timeout      time.Duration
	maxRedirects int
	log          *zap.SugaredLogger
}

func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		client:       &http.Client{},
		profiles:     media_fetch.DefaultProfiles(),
		cacheSize:    DefaultCacheSize,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		log:          zap.S().Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[string, CanonicalLink](r.cacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	r.client.Timeout = r.timeout
	r.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return r, nil
}

// Resolve is ResolveMax with the configured redirect limit.
func (r *Resolver) Resolve(ctx context.Context, shortURL string) CanonicalLink {
	return r.ResolveMax(ctx, shortURL, r.maxRedirects)
}

// ResolveMax follows redirects from shortURL for at most maxRedirects hops. It never fails: on any error the best URL
// found so far is returned, with Stop set to StopError. Results are cached by shortURL, so a repeated call makes no
// network requests. Only successful resolutions are written to the Store.
func (r *Resolver) ResolveMax(ctx context.Context, shortURL string, maxRedirects int) CanonicalLink {
	key := strings.TrimSpace(shortURL)
	if link, ok := r.Cached(key); ok {
		return link
	}
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		if link, ok := r.Cached(key); ok {
			return link, nil
		}
		link := r.follow(ctx, key, maxRedirects)
		if link.Stop == StopError && ctx.Err() != nil {
			// Caller gave up, which says nothing about the link itself
			return link, nil
		}
		r.cache.Add(key, link)
		// Failures are kept in memory only, so a later process tries the network again
		if r.store != nil && link.Stop != StopError {
			if err := r.store.PutLink(&link); err != nil {
				r.log.Warnf("failed to store resolved link %v: %v", key, err)
			}
		}
		return link, nil
	})
	return v.(CanonicalLink)
}

// Cached returns a previously resolved link without touching the network.
func (r *Resolver) Cached(shortURL string) (CanonicalLink, bool) {
	key := strings.TrimSpace(shortURL)
	if link, ok := r.cache.Get(key); ok {
		return link, true
	}
	if r.store == nil {
		return CanonicalLink{}, false
	}
	link, err := r.store.GetLink(key)
	if err != nil {
		r.log.Warnf("failed to read stored link %v: %v", key, err)
		return CanonicalLink{}, false
	} else if link == nil {
		return CanonicalLink{}, false
	}
	r.cache.Add(key, *link)
	return *link, true
}

// Len is the number of links held in memory.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// Purge empties the in-memory cache.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

func (r *Resolver) follow(ctx context.Context, shortURL string, maxRedirects int) CanonicalLink {
	link := CanonicalLink{ShortURL: shortURL, URL: shortURL}
	current, err := media_fetch.ParseLink(shortURL)
	if err != nil || current.Host == "" {
		link.Stop = StopError
		if err != nil {
			link.Err = err.Error()
		} else {
			link.Err = "missing host"
		}
		r.log.Warnf("cannot resolve %q: %v", shortURL, link.Err)
		return link
	}
	link.URL = current.String()
	profile := r.profiles.ForURL(shortURL)
	log := r.log.With("url", shortURL)

	for {
		if link.Redirects >= maxRedirects {
			link.Stop = StopLimit
			log.Debugf("redirect limit %d reached at %v", maxRedirects, link.URL)
			return link
		}
		resp, err := r.probe(ctx, profile, current)
		if err != nil {
			link.Stop = StopError
			link.Err = err.Error()
			log.Warnf("redirect probe failed, using %v: %v", link.URL, err)
			return link
		}
		location := resp.Header.Get("Location")
		status := resp.StatusCode
		discardBody(resp)

		if status < 300 || status > 399 {
			link.Stop = StopTerminal
			log.Debugf("resolved to %v after %d redirects (status %d)", link.URL, link.Redirects, status)
			return link
		}
		if location == "" {
			link.Stop = StopNoLocation
			log.Debugf("redirect without location at %v", link.URL)
			return link
		}
		next, err := current.Parse(location)
		if err != nil {
			link.Stop = StopError
			link.Err = err.Error()
			log.Warnf("invalid redirect location %q: %v", location, err)
			return link
		}
		current = next
		link.URL = next.String()
		link.Redirects++
		log.Debugf("redirect %d -> %v", link.Redirects, link.URL)
		if r.profiles.For(media_fetch.Classify(link.URL)).IsFinal(next) {
			link.Stop = StopFinalForm
			return link
		}
	}
}

func (r *Resolver) probe(ctx context.Context, profile media_fetch.Profile, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, profile.ProbeMethod(), u.String(), nil)
	if err != nil {
		return nil, err
	}
	profile.ApplyProbe(req)
	return r.client.Do(req)
}

func discardBody(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	_ = resp.Body.Close()
}

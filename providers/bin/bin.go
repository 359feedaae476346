// Package bin is the catch-all provider: any http(s) link is offered as-is, named by its hash.
package bin

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/url"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
)

var protocols = generic.NewSet("http", "https")

func Match(s string) (media_fetch.Source, error) {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if !protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	urlHash := sha1.New()
	generic.Unwrap(urlHash.Write([]byte(s)))
	id := fmt.Sprintf("%x", urlHash.Sum(nil))[:16]
	return &source{url: s, id: id}, nil
}

type source struct {
	url string
	id  string
}

func (s *source) URL() string {
	return s.url
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Platform() media_fetch.Platform {
	return media_fetch.Classify(s.url)
}

func (s *source) Candidates(ctx context.Context) (*media_fetch.Candidates, error) {
	return &media_fetch.Candidates{
		Platform: s.Platform(),
		ID:       s.id,
		Ext:      "bin",
		Variants: []media_fetch.MediaCandidate{{URL: s.url, SourceTag: "bin"}},
	}, nil
}

func init() {
	media_fetch.DefaultProviderRegistry.MustCreatePriority("bin", Match, media_fetch.PriorityLowest)
}

// Package raw matches links that point straight at a media file.
package raw

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
	"github.com/alanbriolat/media-fetch/util"
)

type Config struct {
	Protocols  generic.Set[string]
	Extensions generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet(
			"http",
			"https",
		),
		Extensions: generic.NewSet(
			"flv",
			"gif",
			"jpeg",
			"jpg",
			"m4a",
			"m4v",
			"mkv",
			"mov",
			"mp3",
			"mp4",
			"png",
			"webm",
			"webp",
		),
	}
}

func (c *Config) Match(s string) (media_fetch.Source, error) {
	// Expect string to be a URL
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	// Check that scheme/protocol is valid
	if !c.Protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	// Attempt to extract filename and extension
	filename, err := util.FilenameFromURL(parsedURL)
	if err != nil {
		return nil, err
	}
	extension := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if extension == "" {
		return nil, fmt.Errorf("no file extension found")
	}
	if !c.Extensions.Contains(extension) {
		return nil, fmt.Errorf("unknown file extension %v", extension)
	}
	res := source{
		url:       s,
		filename:  filename,
		extension: extension,
	}
	return &res, nil
}

func (c Config) Provider() media_fetch.Provider {
	return media_fetch.Provider{
		Name:  "raw",
		Match: c.Match,
	}
}

type source struct {
	url       string
	filename  string
	extension string
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

// Candidates offers the link itself; there is nothing to choose between.
func (s *source) Candidates(ctx context.Context) (*media_fetch.Candidates, error) {
	return &media_fetch.Candidates{
		Platform: s.Platform(),
		ID:       strings.TrimSuffix(s.filename, path.Ext(s.filename)),
		Title:    s.filename,
		Ext:      s.extension,
		Variants: []media_fetch.MediaCandidate{
			{URL: s.url, SourceTag: "raw"},
		},
	}, nil
}

func init() {
	media_fetch.DefaultProviderRegistry.MustAdd(
		NewConfig().Provider().WithPriority(media_fetch.PriorityLowest - 1),
	)
}

package raw

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	media_fetch "github.com/alanbriolat/media-fetch"
)

func TestMatch(t *testing.T) {
	assert := assert_.New(t)
	config := NewConfig()

	_, err := config.Match("ftp://example.com/a.mp4")
	assert.Error(err)
	_, err = config.Match("https://example.com/")
	assert.Error(err)
	_, err = config.Match("https://example.com/page")
	assert.Error(err)
	_, err = config.Match("https://example.com/page.html")
	assert.Error(err)

	source, err := config.Match("https://v3-web.douyinvod.com/abc/Clip.MP4?expires=1")
	if assert.Nil(err) {
		assert.Equal(media_fetch.PlatformDouyin, source.Platform())
		candidates, err := source.Candidates(context.Background())
		assert.Nil(err)
		assert.Equal("Clip", candidates.ID)
		assert.Equal("mp4", candidates.Ext)
		assert.Equal([]media_fetch.MediaCandidate{
			{URL: "https://v3-web.douyinvod.com/abc/Clip.MP4?expires=1", SourceTag: "raw"},
		}, candidates.Variants)
	}
}

func TestRegistered(t *testing.T) {
	assert := assert_.New(t)
	match, err := media_fetch.DefaultProviderRegistry.MatchWith("raw", "https://example.com/a.webm")
	if assert.Nil(err) {
		assert.Equal("raw", match.ProviderName)
	}
}

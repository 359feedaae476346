package youtube

import (
	"errors"
	"net/url"
	"testing"

	"github.com/kkdai/youtube/v2"
	assert_ "github.com/stretchr/testify/assert"

	media_fetch "github.com/alanbriolat/media-fetch"
)

func TestExtractVideoID(t *testing.T) {
	assert := assert_.New(t)
	valid := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":     "dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=1":   "dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ":           "dQw4w9WgXcQ",
		"https://youtube.com/shorts/abcdefghijk?feature=": "abcdefghijk",
		"https://youtu.be/dQw4w9WgXcQ":                    "dQw4w9WgXcQ",
	}
	for in, expected := range valid {
		id, err := extractVideoID(mustParse(t, in))
		if assert.Nil(err, in) {
			assert.Equal(expected, *id, in)
		}
	}
	for _, in := range []string{
		"https://www.youtube.com/watch",
		"https://www.youtube.com/feed",
		"https://example.com/watch?v=x",
		"https://youtu.be/",
	} {
		_, err := extractVideoID(mustParse(t, in))
		assert.Error(err, in)
	}
}

func mustParse(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMatch(t *testing.T) {
	assert := assert_.New(t)
	source, err := Match("https://youtu.be/dQw4w9WgXcQ")
	if assert.Nil(err) {
		assert.Equal("https://www.youtube.com/watch?v=dQw4w9WgXcQ", source.URL())
		assert.Equal(media_fetch.PlatformYouTube, source.Platform())
	}
}

func TestCandidatesFromVideo(t *testing.T) {
	assert := assert_.New(t)
	video := &youtube.Video{
		ID:    "abc",
		Title: "Title",
		Formats: youtube.FormatList{
			{ItagNo: 18, URL: "https://gv/18", MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, FPS: 30, QualityLabel: "360p", ContentLength: 1234, AudioChannels: 2},
			{ItagNo: 137, URL: "https://gv/137", MimeType: `video/mp4; codecs="avc1.640028"`, Bitrate: 4000000, FPS: 30, QualityLabel: "1080p"},
			{ItagNo: 43, MimeType: `video/webm; codecs="vp9, vorbis"`, Bitrate: 700000, FPS: 30, QualityLabel: "360p", AudioChannels: 2},
			{ItagNo: 22, MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, Bitrate: 900000, FPS: 30, QualityLabel: "720p", AudioChannels: 2},
		},
	}
	streamURL := func(f *youtube.Format) (string, error) {
		if f.ItagNo == 43 {
			return "https://gv/43", nil
		}
		return "", errors.New("cipher failed")
	}

	candidates := candidatesFromVideo(video, streamURL)
	assert.Equal("abc", candidates.ID)
	assert.Equal("Title", candidates.Title)
	assert.Equal("mp4", candidates.Ext)
	assert.Equal([]media_fetch.MediaCandidate{
		{URL: "https://gv/18", Bitrate: 500000, FrameRate: 30, CodecLabel: "avc1.42001E", QualityLabel: "360p", SourceTag: "itag:18", SizeBytes: 1234},
		{URL: "https://gv/43", Bitrate: 700000, IsHighEfficiencyCodec: true, FrameRate: 30, CodecLabel: "vp9", QualityLabel: "360p", SourceTag: "itag:43"},
	}, candidates.Variants)
}

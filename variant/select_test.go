package variant

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	media_fetch "github.com/alanbriolat/media-fetch"
)

type candidate = media_fetch.MediaCandidate

func TestSelectBest_CompatibleByBitrateThenFrameRate(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "https://cdn/a", Bitrate: 1000, FrameRate: 30, CodecLabel: "h264"},
		{URL: "https://cdn/b", Bitrate: 2000, FrameRate: 30, CodecLabel: "h264"},
		{URL: "https://cdn/c", Bitrate: 2000, FrameRate: 60, CodecLabel: "avc1.64001F"},
		{URL: "https://cdn/d", Bitrate: 9000, FrameRate: 60, CodecLabel: "bytevc2"},
	}

	result := SelectBest(candidates, nil, false)
	assert.True(result.IsSome())
	sel := result.Unwrap()
	assert.Equal("https://cdn/c", sel.URL)
	assert.Equal(TierCompatible, sel.Tier)
	assert.False(sel.IsDegraded())
	assert.Equal([]string{"https://cdn/b", "https://cdn/a"}, sel.Alternatives)
	assert.Equal([]Rejection{{candidates[3], RejectIncompatibleCodec}}, sel.Rejected)
}

func TestSelectBest_EfficientCodecPreference(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "https://cdn/avc", Bitrate: 3000, CodecLabel: "h264"},
		{URL: "https://cdn/hevc", Bitrate: 1500, CodecLabel: "bytevc1", IsHighEfficiencyCodec: true},
	}

	// Device supports it: efficient codec wins despite lower bitrate
	sel := SelectBest(candidates, nil, true).Unwrap()
	assert.Equal("https://cdn/hevc", sel.URL)
	assert.Empty(sel.Rejected)

	// Device does not: efficient codec is filtered out
	sel = SelectBest(candidates, nil, false).Unwrap()
	assert.Equal("https://cdn/avc", sel.URL)
	assert.Equal([]Rejection{{candidates[1], RejectEfficientCodec}}, sel.Rejected)
	assert.Empty(sel.Alternatives)
}

func TestSelectBest_NeverDiscardsOnlyEfficientOption(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "https://cdn/low", Bitrate: 500, CodecLabel: "h265", IsHighEfficiencyCodec: true},
		{URL: "https://cdn/high", Bitrate: 900, CodecLabel: "h265", IsHighEfficiencyCodec: true},
	}

	sel := SelectBest(candidates, nil, false).Unwrap()
	assert.Equal("https://cdn/high", sel.URL)
	assert.Empty(sel.Rejected)
}

func TestSelectBest_IncompatibleLastResort(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "https://cdn/x", Bitrate: 100, CodecLabel: "ByteVC2"},
		{URL: "https://cdn/y", Bitrate: 200, CodecLabel: "bytevc2"},
	}

	sel := SelectBest(candidates, []string{"https://cdn/playwm/z"}, true).Unwrap()
	assert.Equal("https://cdn/y", sel.URL)
	assert.Equal(TierIncompatible, sel.Tier)
	assert.True(sel.IsDegraded())
	assert.Equal([]string{"https://cdn/x", "https://cdn/play/z"}, sel.Alternatives)
}

func TestSelectBest_UnknownFieldsAreDeterministic(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "https://cdn/first"},
		{URL: "https://cdn/second"},
		{URL: "https://cdn/third", CodecLabel: "vp9"},
	}

	for i := 0; i < 10; i++ {
		sel := SelectBest(candidates, nil, false).Unwrap()
		assert.Equal("https://cdn/first", sel.URL)
		assert.Equal([]string{"https://cdn/second", "https://cdn/third"}, sel.Alternatives)
	}
}

func TestSelectBest_BlankURLsSkipped(t *testing.T) {
	assert := assert_.New(t)
	candidates := []candidate{
		{URL: "", Bitrate: 9000, CodecLabel: "h264"},
		{URL: "  ", Bitrate: 8000, CodecLabel: "h264"},
		{URL: "https://cdn/ok", Bitrate: 10},
	}

	sel := SelectBest(candidates, nil, false).Unwrap()
	assert.Equal("https://cdn/ok", sel.URL)
	assert.Len(sel.Rejected, 2)
	assert.Equal(RejectNoURL, sel.Rejected[0].Reason)
}

func TestSelectBest_Fallback(t *testing.T) {
	assert := assert_.New(t)

	result := SelectBest(nil, []string{"", "  ", "https://aweme/playwm/?video_id=1", "https://other/"}, false)
	assert.True(result.IsSome())
	sel := result.Unwrap()
	assert.Equal("https://aweme/play/?video_id=1", sel.URL)
	assert.Equal(TierFallback, sel.Tier)
	assert.False(sel.IsDegraded())
	assert.Equal([]string{"https://other/"}, sel.Alternatives)

	// Candidates that all lack URLs also fall through to the fallbacks
	sel = SelectBest([]candidate{{Bitrate: 100}}, []string{"https://f/"}, false).Unwrap()
	assert.Equal("https://f/", sel.URL)
	assert.True(sel.IsDegraded())
}

func TestSelectBest_NotFound(t *testing.T) {
	assert := assert_.New(t)
	assert.True(SelectBest(nil, nil, true).IsNone())
	assert.True(SelectBest([]candidate{{CodecLabel: "h264"}}, []string{"", " "}, false).IsNone())
}

func TestSelection_URLs(t *testing.T) {
	assert := assert_.New(t)
	sel := Selection{URL: "a", Alternatives: []string{"b", "a", "c", "b"}}
	assert.Equal([]string{"a", "b", "c"}, sel.URLs())
}

func TestCodecs(t *testing.T) {
	assert := assert_.New(t)
	assert.True(IsCompatibleCodec(""))
	assert.True(IsCompatibleCodec("H264"))
	assert.True(IsCompatibleCodec("hvc1.1.6.L93.B0"))
	assert.True(IsCompatibleCodec("av01"))
	assert.False(IsCompatibleCodec("bytevc2"))
	assert.True(IsKnownSafeCodec("bytevc1"))
	assert.False(IsKnownSafeCodec("av01"))
	assert.Equal("https://x/play/?video_id=1", StripWatermark("https://x/playwm/?video_id=1"))
	assert.Equal("https://x/play/", StripWatermark("https://x/play/"))
}

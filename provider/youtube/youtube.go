package youtube

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	media_fetch "github.com/alanbriolat/media-fetch"
)

// Codecs that need hardware support to decode efficiently.
var efficientCodecs = map[string]bool{
	"vp9":  true,
	"vp09": true,
	"av01": true,
	"hev1": true,
	"hvc1": true,
}

type source struct {
	videoID string
}

func (s *source) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", s.videoID)
}

func (s *source) String() string {
	return s.URL()
}

func (s *source) Platform() media_fetch.Platform {
	return media_fetch.PlatformYouTube
}

// Candidates lists the muxed (audio+video) formats of the video.
func (s *source) Candidates(ctx context.Context) (*media_fetch.Candidates, error) {
	client := youtube.Client{}
	video, err := client.GetVideoContext(ctx, s.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	return candidatesFromVideo(video, func(format *youtube.Format) (string, error) {
		return client.GetStreamURLContext(ctx, video, format)
	}), nil
}

// candidatesFromVideo maps formats to candidates, using streamURL for formats whose URL is ciphered.
func candidatesFromVideo(video *youtube.Video, streamURL func(*youtube.Format) (string, error)) *media_fetch.Candidates {
	log := zap.S().Named("youtube").With("video_id", video.ID)
	res := &media_fetch.Candidates{
		Platform: media_fetch.PlatformYouTube,
		ID:       video.ID,
		Title:    video.Title,
	}
	formats := video.Formats.WithAudioChannels()
	for i := range formats {
		format := &formats[i]
		u := format.URL
		if u == "" {
			var err error
			if u, err = streamURL(format); err != nil {
				log.Debugf("no stream url for itag %d: %v", format.ItagNo, err)
				continue
			}
		}
		mediaType, codec := parseMimeType(format.MimeType)
		if res.Ext == "" {
			res.Ext = extension(mediaType)
		}
		res.Variants = append(res.Variants, media_fetch.MediaCandidate{
			URL:                   u,
			Bitrate:               int64(format.Bitrate),
			IsHighEfficiencyCodec: efficientCodecs[strings.SplitN(codec, ".", 2)[0]],
			FrameRate:             format.FPS,
			CodecLabel:            codec,
			QualityLabel:          format.QualityLabel,
			SourceTag:             fmt.Sprintf("itag:%d", format.ItagNo),
			SizeBytes:             format.ContentLength,
		})
	}
	return res
}

// parseMimeType splits `video/mp4; codecs="avc1.42001E, mp4a.40.2"` into the media type and the first codec.
func parseMimeType(s string) (string, string) {
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return "", ""
	}
	codecs := strings.Split(params["codecs"], ",")
	return mediaType, strings.TrimSpace(codecs[0])
}

func extension(mediaType string) string {
	if parts := strings.SplitN(mediaType, "/", 2); len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func Match(s string) (media_fetch.Source, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return nil, err
	} else if videoID, err := extractVideoID(parsedURL); err != nil {
		return nil, err
	} else {
		return &source{videoID: *videoID}, nil
	}
}

func New() media_fetch.Provider {
	return media_fetch.Provider{Name: "youtube", Match: Match}
}

// Extract video ID from YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m).youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www|m).youtube.com/(v|shorts)/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
func extractVideoID(url *url.URL) (*string, error) {
	var id string
	switch url.Hostname() {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		if strings.HasPrefix(url.Path, "/v/") || strings.HasPrefix(url.Path, "/shorts/") {
			id = strings.SplitN(url.Path, "/", 4)[2]
		} else if url.Path == "/watch" || url.Path == "/details" {
			if url.Query().Has("v") {
				id = url.Query().Get("v")
			} else {
				return nil, fmt.Errorf("missing ?v= query parameter")
			}
		}
	case "youtu.be":
		id = strings.Trim(url.Path, "/")
	default:
		return nil, fmt.Errorf("unrecognised hostname")
	}
	if id == "" {
		return nil, fmt.Errorf("could not extract video ID")
	}
	return &id, nil
}

func init() {
	media_fetch.DefaultProviderRegistry.MustAdd(New())
}

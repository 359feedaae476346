package media_fetch

import (
	"net/url"
	"strings"
)

// Platform identifies the content site a link belongs to.
type Platform string

const (
	PlatformUnknown     Platform = "unknown"
	PlatformDouyin      Platform = "douyin"
	PlatformTikTok      Platform = "tiktok"
	PlatformKuaishou    Platform = "kuaishou"
	PlatformBilibili    Platform = "bilibili"
	PlatformXiaohongshu Platform = "xiaohongshu"
	PlatformWeibo       Platform = "weibo"
	PlatformInstagram   Platform = "instagram"
	PlatformTwitter     Platform = "twitter"
	PlatformYouTube     Platform = "youtube"
	PlatformPipixia     Platform = "pipixia"
	PlatformXigua       Platform = "xigua"
)

func (p Platform) String() string {
	return string(p)
}

// IsKnown returns true for every platform except PlatformUnknown.
func (p Platform) IsKnown() bool {
	return p != PlatformUnknown && p != ""
}

type platformDomains struct {
	platform Platform
	domains  []string
}

// classifyOrder is the precedence used by Classify; the first platform with a matching domain wins.
var classifyOrder = []platformDomains{
	{PlatformDouyin, []string{"douyin.com", "iesdouyin.com", "douyinvod.com", "amemv.com"}},
	{PlatformTikTok, []string{"tiktok.com", "tiktokv.com", "tiktokcdn.com"}},
	{PlatformKuaishou, []string{"kuaishou.com", "gifshow.com", "chenzhongtech.com", "kwai.com"}},
	{PlatformBilibili, []string{"bilibili.com", "b23.tv", "bilivideo.com"}},
	{PlatformXiaohongshu, []string{"xiaohongshu.com", "xhslink.com", "xhscdn.com"}},
	{PlatformWeibo, []string{"weibo.com", "weibo.cn", "sinaimg.cn"}},
	{PlatformInstagram, []string{"instagram.com", "instagr.am", "cdninstagram.com"}},
	{PlatformTwitter, []string{"twitter.com", "x.com", "t.co", "twimg.com"}},
	{PlatformYouTube, []string{"youtube.com", "youtu.be", "googlevideo.com"}},
	{PlatformPipixia, []string{"pipix.com", "pipixia.com"}},
	{PlatformXigua, []string{"ixigua.com"}},
}

// Platforms returns every known platform in classification precedence order.
func Platforms() []Platform {
	platforms := make([]Platform, 0, len(classifyOrder))
	for _, pd := range classifyOrder {
		platforms = append(platforms, pd.platform)
	}
	return platforms
}

// Classify maps a URL to the platform whose domain it belongs to, or PlatformUnknown. Links without a scheme (e.g.
// "v.douyin.com/abc/") are accepted.
func Classify(rawURL string) Platform {
	host := hostOf(rawURL)
	if host == "" {
		return PlatformUnknown
	}
	for _, pd := range classifyOrder {
		for _, domain := range pd.domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return pd.platform
			}
		}
	}
	return PlatformUnknown
}

// ParseLink parses a user-supplied link, adding an https:// scheme when none is present.
func ParseLink(rawURL string) (*url.URL, error) {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return url.Parse(s)
}

func hostOf(rawURL string) string {
	u, err := ParseLink(strings.ToLower(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Hostname(), ".")
}

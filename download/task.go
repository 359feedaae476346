package download

import (
	"errors"
	"strings"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
)

var (
	ErrNoURLs        = errors.New("download task has no urls")
	ErrNoDestination = errors.New("download task has no destination")
)

// A Task describes one acquisition: candidate URLs in preference order (primary first, then CDN fallbacks), the
// platform used for request headers, the destination path and the advertised size (0 if unknown). The advertised size is informational: it neither
// verifies the download nor makes progress determinate.
type Task struct {
	URLs         []string
	Platform     media_fetch.Platform
	Destination  string
	ExpectedSize int64
}

// NewTask builds a Task, dropping blank and duplicate URLs. A task with no usable URL is an error.
func NewTask(urls []string, platform media_fetch.Platform, destination string, expectedSize int64) (Task, error) {
	t := Task{
		URLs:         cleanURLs(urls),
		Platform:     platform,
		Destination:  strings.TrimSpace(destination),
		ExpectedSize: expectedSize,
	}
	if t.ExpectedSize < 0 {
		t.ExpectedSize = 0
	}
	return t, t.Validate()
}

func (t Task) Validate() error {
	if len(cleanURLs(t.URLs)) == 0 {
		return ErrNoURLs
	}
	if t.Destination == "" {
		return ErrNoDestination
	}
	return nil
}

func cleanURLs(urls []string) []string {
	seen := generic.NewSet[string]()
	res := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" && seen.Add(u) {
			res = append(res, u)
		}
	}
	return res
}

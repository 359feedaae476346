package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/internal/session"
	"github.com/alanbriolat/media-fetch/resolve"
)

func openTestDatabase(t *testing.T) (*Database, string) {
	path := filepath.Join(t.TempDir(), "history.sqlite3")
	d, err := Open(path)
	require.NoError(t, err)
	return d, path
}

func TestDatabase_Migrate(t *testing.T) {
	assert := assert_.New(t)
	d, path := openTestDatabase(t)
	assert.True(d.db.Migrator().HasTable(&Download{}))
	assert.True(d.db.Migrator().HasTable(&Link{}))
	d.Close()

	// Migrating an up-to-date database is fine
	d, err := Open(path)
	require.NoError(t, err)
	d.Close()
}

func TestDatabase_Downloads(t *testing.T) {
	assert := assert_.New(t)
	d, _ := openTestDatabase(t)
	defer d.Close()

	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	first := session.DownloadPersistentState{
		ID:       "first",
		URL:      "https://v.douyin.com/abc/",
		SavePath: "/tmp",
		AddedAt:  base,
		Status:   session.DownloadStatusNew,
	}
	second := session.DownloadPersistentState{
		ID:       "second",
		URL:      "https://b23.tv/xyz",
		AddedAt:  base.Add(time.Minute),
		Status:   session.DownloadStatusError,
		Error:    "no playable variant found",
		Platform: media_fetch.PlatformBilibili,
	}
	assert.NoError(d.WriteDownload(&first))
	assert.NoError(d.WriteDownload(&second))

	// Upsert replaces the existing row
	first.Status = session.DownloadStatusComplete
	first.Path = "/tmp/douyin-123.mp4"
	first.Bytes = 4096
	first.Degraded = "fallback"
	assert.NoError(d.WriteDownload(&first))

	list, err := d.ListDownloads()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(session.DownloadID("first"), list[0].ID)
	assert.Equal(session.DownloadStatusComplete, list[0].Status)
	assert.Equal("/tmp/douyin-123.mp4", list[0].Path)
	assert.Equal(int64(4096), list[0].Bytes)
	assert.Equal("fallback", list[0].Degraded)
	assert.True(base.Equal(list[0].AddedAt))
	assert.Equal(media_fetch.PlatformBilibili, list[1].Platform)

	recent, err := d.RecentDownloads(10, session.DownloadStatusUndefined)
	require.NoError(t, err)
	assert.Equal(session.DownloadID("second"), recent[0].ID)
	failed, err := d.RecentDownloads(10, session.DownloadStatusError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal("no playable variant found", failed[0].Error)

	assert.NoError(d.DeleteDownload(&second))
	list, err = d.ListDownloads()
	require.NoError(t, err)
	assert.Len(list, 1)
}

func TestDatabase_Links(t *testing.T) {
	assert := assert_.New(t)
	d, _ := openTestDatabase(t)
	defer d.Close()

	link, err := d.GetLink("https://xhslink.com/a")
	assert.NoError(err)
	assert.Nil(link)

	stored := &resolve.CanonicalLink{
		ShortURL:  "https://xhslink.com/a",
		URL:       "https://www.xiaohongshu.com/discovery/item/123",
		Redirects: 2,
		Stop:      resolve.StopFinalForm,
	}
	assert.NoError(d.PutLink(stored))
	link, err = d.GetLink(stored.ShortURL)
	assert.NoError(err)
	assert.Equal(stored, link)

	failed := &resolve.CanonicalLink{ShortURL: stored.ShortURL, URL: stored.ShortURL, Stop: resolve.StopError, Err: "timeout"}
	assert.NoError(d.PutLink(failed))
	link, err = d.GetLink(stored.ShortURL)
	assert.NoError(err)
	assert.Equal(failed, link)
}

func TestDatabase_DownloadCandidates(t *testing.T) {
	assert := assert_.New(t)
	d, path := openTestDatabase(t)

	state := session.DownloadPersistentState{
		ID:       "with-candidates",
		URL:      "https://v.douyin.com/abc/",
		AddedAt:  time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Status:   session.DownloadStatusError,
		Provider: "candidates",
		Candidates: &media_fetch.Candidates{
			Platform:     media_fetch.PlatformDouyin,
			ID:           "123",
			Ext:          "mp4",
			Variants:     []media_fetch.MediaCandidate{{URL: "https://cdn.example/a.mp4", Bitrate: 1000, CodecLabel: "h264"}},
			FallbackURLs: []string{"https://cdn.example/playwm/a.mp4"},
		},
	}
	require.NoError(t, d.WriteDownload(&state))
	d.Close()

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	list, err := d.ListDownloads()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(state.Candidates, list[0].Candidates)
}

func TestDatabase_SessionRestore(t *testing.T) {
	assert := assert_.New(t)
	d, _ := openTestDatabase(t)
	defer d.Close()

	state := session.DownloadPersistentState{
		ID:      session.NewDownloadID(),
		URL:     "https://example.com/a.mp4",
		AddedAt: time.Now(),
		Status:  session.DownloadStatusDownloading,
	}
	require.NoError(t, d.WriteDownload(&state))

	cfg := session.DefaultConfig
	cfg.Database = d
	s, err := session.New(cfg, context.Background())
	require.NoError(t, err)
	defer s.Close()
	<-s.Loaded()
	restored := s.GetDownload(state.ID)
	require.NotNil(t, restored)
	current, err := restored.State()
	require.NoError(t, err)
	assert.Equal(session.DownloadStatusReady, current.Status)
}

package boltdb

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/internal/session"
	"github.com/alanbriolat/media-fetch/resolve"
)

func TestDatabase_Downloads(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := New(path)
	require.NoError(t, err)

	list, err := db.ListDownloads()
	assert.NoError(err)
	assert.Empty(list)

	state := session.DownloadPersistentState{
		ID:      session.NewDownloadID(),
		URL:     "https://v.douyin.com/abc/",
		AddedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:  session.DownloadStatusComplete,
		Path:    "/tmp/douyin-123.mp4",
		Bytes:   1024,
		Candidates: &media_fetch.Candidates{
			Platform: media_fetch.PlatformDouyin,
			Variants: []media_fetch.MediaCandidate{{URL: "https://cdn.example/a.mp4", IsHighEfficiencyCodec: true}},
		},
	}
	assert.NoError(db.WriteDownload(&state))
	state.Bytes = 2048
	assert.NoError(db.WriteDownload(&state))
	require.NoError(t, db.Close())

	// Reopening keeps the data
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	list, err = db.ListDownloads()
	assert.NoError(err)
	assert.Equal([]session.DownloadPersistentState{state}, list)

	assert.NoError(db.DeleteDownload(&state))
	list, err = db.ListDownloads()
	assert.NoError(err)
	assert.Empty(list)
}

func TestDatabase_Links(t *testing.T) {
	assert := assert_.New(t)
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	link, err := db.GetLink("https://b23.tv/xyz")
	assert.NoError(err)
	assert.Nil(link)

	stored := &resolve.CanonicalLink{
		ShortURL:  "https://b23.tv/xyz",
		URL:       "https://www.bilibili.com/video/BV1xx",
		Redirects: 1,
		Stop:      resolve.StopFinalForm,
	}
	assert.NoError(db.PutLink(stored))
	link, err = db.GetLink("https://b23.tv/xyz")
	assert.NoError(err)
	assert.Equal(stored, link)
}

func TestDatabase_Version(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	raw, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	var version int
	assert.NoError(raw.View(func(tx *bbolt.Tx) error {
		return json.Unmarshal(tx.Bucket(Buckets.Metadata).Get(MetadataKeys.Version), &version)
	}))
	assert.Equal(currentVersion, version)
	// Pretend a newer release wrote this file
	assert.NoError(raw.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Metadata).Put(MetadataKeys.Version, []byte("99"))
	}))
	require.NoError(t, raw.Close())

	_, err = New(path)
	assert.ErrorContains(err, "newer than supported")
}

func TestDatabase_SkipsInvalidRecords(t *testing.T) {
	assert := assert_.New(t)
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer d.Close()

	assert.NoError(d.(*database).Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Downloads).Put([]byte("broken"), []byte("{"))
	}))
	state := session.DownloadPersistentState{ID: "ok", URL: "https://example.com/a.mp4", Status: session.DownloadStatusNew}
	assert.NoError(d.WriteDownload(&state))
	list, err := d.ListDownloads()
	assert.NoError(err)
	assert.Len(list, 1)
	assert.Equal(session.DownloadID("ok"), list[0].ID)
}

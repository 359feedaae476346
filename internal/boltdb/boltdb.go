// Package boltdb stores session downloads and resolved links in a bbolt file.
package boltdb

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/alanbriolat/media-fetch/internal/session"
	"github.com/alanbriolat/media-fetch/resolve"
)

var Buckets = struct {
	Metadata  []byte
	Downloads []byte
	Links     []byte
}{
	Metadata:  []byte("__metadata__"),
	Downloads: []byte("downloads"),
	Links:     []byte("links"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

// Version 2 added the links bucket, which needs no data migration.
const currentVersion = 2

type Database interface {
	Close() error

	session.Database
	resolve.Store
}

type database struct {
	*bbolt.DB
	log *zap.SugaredLogger
}

func New(path string) (_ Database, err error) {
	log := zap.S().Named("boltdb")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		for _, name := range [][]byte{Buckets.Downloads, Buckets.Links} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		// Get the current version of the database
		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("database version %d is newer than supported version %d", version, currentVersion)
		} else if version < currentVersion {
			log.Infof("upgrading %v from version %d to %d", path, version, currentVersion)
		}

		// Set the current version of the database
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &database{db, log}, nil
}

func (d database) ListDownloads() (downloads []session.DownloadPersistentState, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Downloads)
		return bucket.ForEach(func(k, v []byte) error {
			var state session.DownloadPersistentState
			if err := json.Unmarshal(v, &state); err != nil {
				// Skip rather than lose every other download
				d.log.Warnf("invalid download record %q: %v", k, err)
				return nil
			} else {
				downloads = append(downloads, state)
				return nil
			}
		})
	})
	if err != nil {
		return nil, err
	} else {
		return downloads, nil
	}
}

func (d database) WriteDownload(state *session.DownloadPersistentState) error {
	return d.put(Buckets.Downloads, []byte(state.ID), state)
}

func (d database) DeleteDownload(state *session.DownloadPersistentState) error {
	return d.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Downloads)
		return bucket.Delete([]byte(state.ID))
	})
}

// GetLink returns (nil, nil) if the short link has never been resolved.
func (d database) GetLink(shortURL string) (link *resolve.CanonicalLink, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(Buckets.Links).Get([]byte(shortURL))
		if data == nil {
			return nil
		}
		link = &resolve.CanonicalLink{}
		return json.Unmarshal(data, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (d database) PutLink(link *resolve.CanonicalLink) error {
	return d.put(Buckets.Links, []byte(link.ShortURL), link)
}

func (d database) put(bucket []byte, key []byte, value any) error {
	if data, err := json.Marshal(value); err != nil {
		return err
	} else {
		return d.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucket).Put(key, data)
		})
	}
}

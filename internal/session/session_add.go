package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
)

var (
	ErrSessionClosed = errors.New("session closed")
)

type AddDownloadOptions struct {
	// Override download save path; if not set (empty), will use the Session's save path.
	SavePath string
	// Fixed file name; if not set, the name comes from Config.FileTemplate once the media is known.
	Filename string
	// Candidates to choose from instead of asking a provider.
	Candidates *media_fetch.Candidates
}

func (s *Session) AddDownload(url string, opt *AddDownloadOptions) (*Download, error) {
	if opt == nil {
		opt = &AddDownloadOptions{}
	}
	ds := DownloadState{}
	ds.ID = NewDownloadID()
	ds.URL = url
	ds.Status = DownloadStatusNew
	if opt.SavePath != "" {
		ds.SavePath = opt.SavePath
	} else {
		ds.SavePath = s.config.DefaultSavePath
	}
	ds.Filename = opt.Filename
	ds.AddedAt = time.Now()
	if ds.Filename != "" {
		// The destination is already known, so a clash can be refused up front
		destination := filepath.Join(ds.SavePath, media_fetch.SanitizeFilename(ds.Filename))
		if s.destinationInUse(destination) {
			return nil, fmt.Errorf("%w: %v", ErrDestinationBusy, destination)
		}
	}
	ds.Candidates = opt.Candidates
	return s.insertDownload(ds)
}

// destinationInUse returns true if an active download has claimed the destination.
func (s *Session) destinationInUse(path string) (inUse bool) {
	_ = s.destinations.Locked(func(destinations downloadsByDestination) error {
		_, inUse = destinations[path]
		return nil
	})
	return inUse
}

func (s *Session) insertDownload(ds DownloadState) (*Download, error) {
	id := ds.ID
	d, err := newDownload(s, ds)
	if err != nil {
		return nil, err
	}
	err = s.downloads.Locked(func(downloads downloadsByID) error {
		if downloads == nil {
			return ErrSessionClosed
		} else if _, ok := downloads[id]; ok {
			return errors.New("duplicate download ID")
		} else {
			downloads[id] = d
			return nil
		}
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	if err := s.config.Database.WriteDownload(&d.DownloadPersistentState); err != nil {
		s.log.Errorf("failed to persist download %v: %v", d, err)
	}
	generic.Unwrap_(d.events.AddSubscriber(s.events, false))
	s.log.Debugf("download added: %v", d)
	s.events.Send(DownloadAdded{downloadEvent{d}})
	return d, nil
}

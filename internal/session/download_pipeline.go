package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/download"
	"github.com/alanbriolat/media-fetch/variant"
)

var (
	ErrNoVariant       = errors.New("no playable variant found")
	ErrDestinationBusy = errors.New("destination is already being downloaded")
)

// A FailedError is returned by a pipeline run whose acquisition failed.
type FailedError struct {
	download.Failed
}

func (e FailedError) Error() string {
	return fmt.Sprintf("download failed (%v): %v", e.Kind, e.Reason)
}

// Unwrap makes a cancelled download match context.Canceled.
func (e FailedError) Unwrap() error {
	if e.Kind == download.FailureCancelled {
		return context.Canceled
	}
	return nil
}

// pipeline runs resolve, classify, candidate lookup, selection and acquisition for one download. It only reads state,
// which is a snapshot; changes go through update.
func (d *Download) pipeline(ctx context.Context, state DownloadState) error {
	log := d.log()
	cfg := d.session.config

	// Resolve
	d.update(ctx, func(ds *DownloadState) {
		ds.Status = DownloadStatusResolving
	})
	candidates := state.Candidates
	link := d.session.resolver.Resolve(ctx, state.URL)
	if err := ctx.Err(); err != nil {
		return err
	}
	platform := link.Platform()
	d.update(ctx, func(ds *DownloadState) {
		ds.Status = DownloadStatusResolved
		ds.ResolvedURL = link.URL
		ds.Redirects = link.Redirects
		ds.Platform = platform
	})
	log.Debugf("resolved %v -> %v (%v, %d redirects)", state.URL, link.URL, platform, link.Redirects)

	// Select
	d.update(ctx, func(ds *DownloadState) {
		ds.Status = DownloadStatusSelecting
	})
	provider := "candidates"
	if candidates == nil {
		match, err := cfg.ProviderRegistry.Match(link.URL)
		if err != nil {
			return err
		}
		provider = match.ProviderName
		if candidates, err = match.Source.Candidates(ctx); err != nil {
			return fmt.Errorf("failed to list candidates: %w", err)
		}
	}
	if candidates.Platform.IsKnown() {
		platform = candidates.Platform
	}
	selection := variant.SelectBest(candidates.Variants, candidates.FallbackURLs, cfg.SupportsEfficientCodec)
	if selection.IsNone() {
		return ErrNoVariant
	}
	sel := selection.Unwrap()
	for _, r := range sel.Rejected {
		log.Debugf("rejected candidate %v: %v", r.Candidate.URL, r.Reason)
	}
	if sel.IsDegraded() {
		log.Warnf("degraded selection: %v", sel.Degraded)
	}

	destination, err := d.destination(state, platform, candidates)
	if err != nil {
		return err
	}
	d.update(ctx, func(ds *DownloadState) {
		ds.Status = DownloadStatusReady
		ds.Provider = provider
		ds.Name = candidates.Title
		ds.SelectedURL = sel.URL
		ds.Degraded = sel.Degraded
		ds.Path = destination
	})

	// Download
	if err := d.session.claimDestination(destination, state.ID); err != nil {
		return err
	}
	task, err := download.NewTask(sel.URLs(), platform, destination, sel.Candidate.SizeBytes)
	if err != nil {
		return err
	}
	d.update(ctx, func(ds *DownloadState) {
		ds.Status = DownloadStatusDownloading
	})
	final := d.session.engine.Run(ctx, task, func(s download.State) {
		if progress, ok := s.(download.Downloading); ok {
			d.progress(ctx, progress)
		}
	})
	switch s := final.(type) {
	case download.Success:
		d.update(ctx, func(ds *DownloadState) {
			ds.Path = s.Path
			ds.Bytes = s.Bytes
			ds.Progress = 100
			ds.BytesRead = s.Bytes
		})
		return nil
	case download.Failed:
		return FailedError{s}
	default:
		return fmt.Errorf("unexpected final state %v", final)
	}
}

// progress forwards a Downloading state, throttled to Config.ProgressUpdateInterval except for attempt starts and
// completion.
func (d *Download) progress(ctx context.Context, p download.Downloading) {
	now := time.Now()
	if p.BytesRead != 0 && p.Percent < 100 && now.Sub(d.lastProgressAt) < d.session.config.ProgressUpdateInterval {
		return
	}
	d.lastProgressAt = now
	d.update(ctx, func(ds *DownloadState) {
		ds.Progress = p.Percent
		ds.BytesRead = p.BytesRead
		ds.TotalBytes = p.TotalBytes
		ds.Indeterminate = p.Indeterminate()
	})
}

func (d *Download) destination(state DownloadState, platform media_fetch.Platform, candidates *media_fetch.Candidates) (string, error) {
	if state.Filename != "" {
		return filepath.Join(state.SavePath, media_fetch.SanitizeFilename(state.Filename)), nil
	}
	target := media_fetch.NewDownloadConfigTemplate(state.SavePath, d.session.config.FileTemplate)
	return target.GetTargetPath(media_fetch.TargetArgs{
		Platform: platform,
		ID:       candidates.ID,
		Title:    candidates.Title,
		Ext:      candidates.Ext,
	})
}

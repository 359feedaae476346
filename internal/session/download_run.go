package session

import (
	"context"
	"errors"
)

func (d *Download) run() {
	d.stopped.Set()

	for {
		select {
		case <-d.ctx.Done():
			d.close()
			close(d.done)
			return
		case cmd := <-d.stateCommand:
			_ = cmd.Respond(d.DownloadState)
		case <-d.startCommand:
			d.start()
		case <-d.stopCommand:
			d.stop()
		case f := <-d.updates:
			d.updateState(f)
		case err := <-d.finished:
			d.finish(err)
		}
	}
}

func (d *Download) close() {
	d.stop()
	if d.runDone != nil {
		// The pipeline gives up on sending to a closed download, so this can't deadlock
		<-d.runDone
		d.finish(context.Canceled)
	}
	d.events.Close()
}

func (d *Download) start() {
	if !d.stopped.Clear() {
		// Already running (or being started) so nothing to do
		return
	}
	d.running.Set()
	d.complete.Clear()
	ctx, cancel := context.WithCancel(d.ctx)
	d.runCancel = cancel
	d.runDone = make(chan struct{})
	d.updateState(func(ds *DownloadState) {
		ds.Error = ""
		ds.downloadEphemeralFields = downloadEphemeralFields{}
	})
	d.events.Send(DownloadStarted{downloadEvent{d}})
	go func(state DownloadState, done chan struct{}) {
		defer close(done)
		err := d.pipeline(ctx, state)
		select {
		case d.finished <- err:
		case <-d.ctx.Done():
		}
	}(d.DownloadState, d.runDone)
}

func (d *Download) stop() {
	if d.runCancel != nil {
		d.runCancel()
	}
}

// finish records the outcome of a pipeline run.
func (d *Download) finish(err error) {
	if !d.running.Clear() {
		// Not running (or already stopping) so nothing to do
		return
	}
	d.runCancel()
	d.runCancel = nil
	d.runDone = nil
	d.session.releaseDestination(d.ID)
	d.updateState(func(ds *DownloadState) {
		switch {
		case err == nil:
			ds.Status = DownloadStatusComplete
		case errors.Is(err, context.Canceled):
			ds.Status = ds.Status.NonRunning()
		default:
			ds.Status = DownloadStatusError
			ds.Error = err.Error()
		}
	})
	if err == nil {
		d.log().Infof("download complete: %v", d.Path)
		d.complete.Set()
		d.events.Send(DownloadFileComplete{downloadEvent{d}, d.Path})
	} else {
		d.log().Infof("download stopped: %v", err)
	}
	d.stopped.Set()
	d.events.Send(DownloadStopped{downloadEvent{d}, err})
}

// update applies f to the state from the pipeline goroutine, giving up if ctx ends first.
func (d *Download) update(ctx context.Context, f func(ds *DownloadState)) {
	select {
	case d.updates <- f:
	case <-ctx.Done():
	}
}

func (d *Download) updateState(f func(ds *DownloadState)) {
	old := d.DownloadState
	f(&d.DownloadState)
	if d.DownloadState == old {
		return
	}
	if d.DownloadPersistentState != old.DownloadPersistentState {
		if err := d.session.config.Database.WriteDownload(&d.DownloadPersistentState); err != nil {
			d.log().Errorf("failed to persist download state: %v", err)
		}
	}
	d.events.Send(DownloadUpdated{downloadEvent{d}, old, d.DownloadState})
}

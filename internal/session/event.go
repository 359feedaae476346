package session

// An Event is published by a Session for every change to its downloads. Consumers use a type switch; events are
// delivered in the order they happened for any one Download.
type Event interface {
	// The Download this event relates to (nil if not a Download-specific event).
	Download() *Download
}

type downloadEvent struct {
	download *Download
}

func (e downloadEvent) Download() *Download {
	return e.download
}

type DownloadAdded struct {
	downloadEvent
}
type DownloadRemoved struct {
	downloadEvent
}
type DownloadStarted struct {
	downloadEvent
}

// DownloadStopped is sent when a pipeline run ends, successfully or not. Err is nil on success.
type DownloadStopped struct {
	downloadEvent
	Err error
}

// DownloadUpdated carries state snapshots from before and after a change, which are safe to read from any goroutine.
type DownloadUpdated struct {
	downloadEvent
	OldState DownloadState
	NewState DownloadState
}
type DownloadFileComplete struct {
	downloadEvent
	Path string
}

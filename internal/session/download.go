package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/generic"
	"github.com/alanbriolat/media-fetch/internal/lpc"
	"github.com/alanbriolat/media-fetch/internal/pubsub"
	"github.com/alanbriolat/media-fetch/internal/sync_"
)

var (
	ErrDownloadClosed = errors.New("download closed")
)

type DownloadID string

func NewDownloadID() DownloadID {
	return DownloadID(generic.Unwrap(uuid.NewRandom()).String())
}

type DownloadStatus string

const (
	DownloadStatusUndefined   DownloadStatus = ""
	DownloadStatusNew         DownloadStatus = "new"
	DownloadStatusResolving   DownloadStatus = "resolving"
	DownloadStatusResolved    DownloadStatus = "resolved"
	DownloadStatusSelecting   DownloadStatus = "selecting"
	DownloadStatusReady       DownloadStatus = "ready"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusComplete    DownloadStatus = "complete"
	DownloadStatusError       DownloadStatus = "error"
)

var runningStatuses = generic.NewSet(
	DownloadStatusResolving,
	DownloadStatusSelecting,
	DownloadStatusDownloading,
)

// IsRunning returns true if the status is one where some active process should be updating the download in some way.
func (s DownloadStatus) IsRunning() bool {
	return runningStatuses.Contains(s)
}

// NonRunning returns the closest preceding status where IsRunning is false, which may be the same status if IsRunning
// is already false.
func (s DownloadStatus) NonRunning() DownloadStatus {
	switch s {
	case DownloadStatusResolving:
		return DownloadStatusNew
	case DownloadStatusSelecting:
		return DownloadStatusResolved
	case DownloadStatusDownloading:
		return DownloadStatusReady
	default:
		return s
	}
}

// DownloadPersistentState is the part of a download's state that is written to the Database.
type DownloadPersistentState struct {
	ID       DownloadID     `json:"id"`
	URL      string         `json:"url"`
	SavePath string         `json:"save_path"`
	Filename string         `json:"filename,omitempty"`
	AddedAt  time.Time      `json:"added_at"`
	Status   DownloadStatus `json:"status"`
	Error    string         `json:"error,omitempty"`

	// Candidates supplied when the download was added, used instead of provider matching on every run
	Candidates *media_fetch.Candidates `json:"candidates,omitempty"`

	// Data from "resolve" stage
	ResolvedURL string               `json:"resolved_url,omitempty"`
	Redirects   int                  `json:"redirects,omitempty"`
	Platform    media_fetch.Platform `json:"platform,omitempty"`

	// Data from "select" stage
	Provider    string `json:"provider,omitempty"`
	Name        string `json:"name,omitempty"`
	SelectedURL string `json:"selected_url,omitempty"`
	Degraded    string `json:"degraded,omitempty"`

	// Data from "download" stage
	Path  string `json:"path,omitempty"`
	Bytes int64  `json:"bytes,omitempty"`
}

type downloadEphemeralFields struct {
	Progress      int
	BytesRead     int64
	TotalBytes    int64
	Indeterminate bool
}

type DownloadState struct {
	DownloadPersistentState
	downloadEphemeralFields
}

type Download struct {
	DownloadState

	session   *Session
	ctx       context.Context
	ctxCancel context.CancelFunc

	events pubsub.Publisher[Event]

	running      sync_.Event
	stopped      sync_.Event
	complete     sync_.Event
	done         chan struct{}
	startCommand chan struct{}
	stopCommand  chan struct{}
	stateCommand chan StateCommand

	// Owned by the run goroutine
	runCancel context.CancelFunc
	runDone   chan struct{}
	updates   chan func(ds *DownloadState)
	finished  chan error

	// Owned by the pipeline goroutine
	lastProgressAt time.Time
}

// A StateCommand asks the run goroutine for a snapshot of the DownloadState.
type StateCommand = *lpc.Command[generic.Void, DownloadState]

func newDownload(session *Session, state DownloadState) (*Download, error) {
	if state.ID == "" {
		return nil, errors.New("download has no ID")
	}
	if state.URL == "" && state.Candidates == nil {
		return nil, errors.New("download has no URL")
	}
	// Nothing is running yet, whatever the stored status says
	state.Status = state.Status.NonRunning()
	ctx, cancel := context.WithCancel(session.ctx)
	d := &Download{
		DownloadState: state,

		session:   session,
		ctx:       ctx,
		ctxCancel: cancel,

		events: pubsub.NewPublisher[Event](),

		done:         make(chan struct{}),
		startCommand: make(chan struct{}),
		stopCommand:  make(chan struct{}),
		stateCommand: make(chan StateCommand),

		updates:  make(chan func(ds *DownloadState)),
		finished: make(chan error),
	}
	if state.Status == DownloadStatusComplete {
		d.complete.Set()
	}
	go d.run()
	return d, nil
}

func (d *Download) String() string {
	return fmt.Sprintf("Download{ID:\"%s\", URL:\"%s\"}", d.ID, d.URL)
}

func (d *Download) log() *zap.SugaredLogger {
	return zap.S().Named("download").With("download_id", d.ID)
}

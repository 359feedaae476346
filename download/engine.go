// Package download fetches a media file from a list of candidate URLs, reporting progress as a stream of States.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/internal/pubsub"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultChunkSize         = 32 << 10
	DefaultProgressThreshold = 64 << 10
	// DefaultStreamBufSize is the buffer of the channel returned by Engine.Download.
	DefaultStreamBufSize = 16
)

type Option func(e *Engine)

func WithClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

func WithProfiles(profiles media_fetch.Profiles) Option {
	return func(e *Engine) {
		e.profiles = profiles
	}
}

// WithTimeout bounds the wait for response headers and for each read of the body.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

func WithChunkSize(size int) Option {
	return func(e *Engine) {
		e.chunkSize = size
	}
}

// WithProgressThreshold sets how many bytes must arrive between throttled Downloading states.
func WithProgressThreshold(bytes int64) Option {
	return func(e *Engine) {
		e.progressThreshold = bytes
	}
}

// WithTempDir stages partial files in dir instead of beside the destination.
func WithTempDir(dir string) Option {
	return func(e *Engine) {
		e.staging.baseTempDir = dir
	}
}

func WithRename(rename RenameFunc) Option {
	return func(e *Engine) {
		e.staging.rename = rename
	}
}

// An Engine runs download Tasks. It holds no per-task state, so one Engine can run many tasks concurrently.
type Engine struct {
	client            *http.Client
	profiles          media_fetch.Profiles
	timeout           time.Duration
	chunkSize         int
	progressThreshold int64
	staging           stagingConfig
	log               *zap.SugaredLogger
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:            &http.Client{},
		profiles:          media_fetch.DefaultProfiles(),
		timeout:           DefaultTimeout,
		chunkSize:         DefaultChunkSize,
		progressThreshold: DefaultProgressThreshold,
		log:               zap.S().Named("download"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	return e
}

// Download runs the task in the background, streaming its states. The stream is closed after the terminal state.
// Closing the stream early cancels the download.
func (e *Engine) Download(ctx context.Context, task Task) pubsub.ReceiverCloser[State] {
	ch := pubsub.NewChannel[State](DefaultStreamBufSize)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-ch.Closed():
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer cancel()
		defer ch.Close()
		e.Run(ctx, task, func(s State) {
			if !ch.Send(s) {
				cancel()
			}
		})
	}()
	return ch
}

// Run executes the task synchronously, passing every state to emit in order, and returns the terminal state. It never
// panics on network or filesystem errors; every failure is reported as Failed.
func (e *Engine) Run(ctx context.Context, task Task, emit func(State)) State {
	log := e.log.With("destination", task.Destination, "platform", task.Platform)
	emit(Idle{})
	if err := task.Validate(); err != nil {
		return e.finish(emit, log, Failed{Kind: FailureInvalidTask, Reason: err.Error()})
	}
	emit(Downloading{})

	urls := cleanURLs(task.URLs)
	profile := e.profiles.For(task.Platform)
	var errs *multierror.Error
	var lastKind FailureKind
	for i, u := range urls {
		state, err := e.attempt(ctx, task, profile, i+1, u, emit)
		if err == nil {
			return e.finish(emit, log, state)
		}
		var failure *attemptError
		if !errors.As(err, &failure) {
			failure = &attemptError{kind: FailureIO, err: err, fatal: true}
		}
		if failure.fatal {
			return e.finish(emit, log, Failed{Kind: failure.kind, Reason: failure.err.Error()})
		}
		lastKind = failure.kind
		errs = multierror.Append(errs, multierror.Prefix(failure.err, fmt.Sprintf("[%v]", u)))
		if i < len(urls)-1 {
			log.Infof("attempt %d/%d failed, trying next url: %v", i+1, len(urls), failure.err)
		}
	}
	errs.ErrorFormat = joinErrors
	return e.finish(emit, log, Failed{Kind: lastKind, Reason: errs.Error()})
}

func (e *Engine) finish(emit func(State), log *zap.SugaredLogger, state State) State {
	switch s := state.(type) {
	case Success:
		log.Infof("download complete: %v (%d bytes)", s.Path, s.Bytes)
	case Failed:
		log.Warnf("download failed (%v): %v", s.Kind, s.Reason)
	}
	emit(state)
	return state
}

type attemptError struct {
	kind FailureKind
	err  error
	// fatal errors end the task instead of moving on to the next URL
	fatal bool
}

func (e *attemptError) Error() string {
	return e.err.Error()
}

func (e *attemptError) Unwrap() error {
	return e.err
}

func (e *Engine) attempt(ctx context.Context, task Task, profile media_fetch.Profile, attempt int, u string, emit func(State)) (State, error) {
	log := e.log.With("url", u, "attempt", attempt)
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()
	timer := newIdleTimer(e.timeout, cancelAttempt)
	defer timer.Stop()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &attemptError{kind: FailureNetwork, err: err}
	}
	profile.Apply(req)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.networkError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &attemptError{kind: FailureHTTPStatus, err: fmt.Errorf("unexpected status %v", resp.Status)}
	}
	timer.Reset()

	// Without Content-Length progress is indeterminate; ExpectedSize is only advisory
	declared := resp.ContentLength
	total := declared
	log.Debugf("response %v, content length %d", resp.Status, declared)
	if declared > 0 && task.ExpectedSize > 0 && declared != task.ExpectedSize {
		log.Debugf("content length %d differs from expected size %d", declared, task.ExpectedSize)
	}
	progress := Downloading{Attempt: attempt, URL: u, TotalBytes: total}
	emit(progress)

	staged, err := newStagedFile(e.staging, task.Destination, log)
	if err != nil {
		return nil, &attemptError{kind: FailureIO, err: fmt.Errorf("failed to create temporary file: %w", err), fatal: true}
	}

	body := &readerContext{ctx: attemptCtx, r: resp.Body}
	buf := make([]byte, e.chunkSize)
	var sinceEmit int64
	var reportedFull bool
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if err := ctx.Err(); err != nil {
				staged.discard()
				return nil, cancelled(err)
			}
			if _, err := staged.Write(buf[:n]); err != nil {
				staged.discard()
				return nil, &attemptError{kind: FailureIO, err: fmt.Errorf("failed to write temporary file: %w", err), fatal: true}
			}
			timer.Reset()
			sinceEmit += int64(n)
			progress.BytesRead = staged.written
			progress.Percent = percent(progress.BytesRead, total)
			full := total > 0 && progress.BytesRead >= total
			if sinceEmit >= e.progressThreshold || (full && !reportedFull) {
				emit(progress)
				sinceEmit = 0
				reportedFull = full
			}
		}
		if readErr == io.EOF {
			break
		} else if readErr != nil {
			staged.discard()
			// A dropped connection (io.ErrUnexpectedEOF) is a network failure, another URL may well succeed
			return nil, e.networkError(ctx, readErr)
		}
	}

	if declared >= 0 && staged.written != declared {
		staged.discard()
		return nil, sizeMismatch(staged.written, declared)
	}
	if err := ctx.Err(); err != nil {
		staged.discard()
		return nil, cancelled(err)
	}
	if err := staged.commit(); err != nil {
		return nil, &attemptError{kind: FailureIO, err: err, fatal: true}
	}
	return Success{Path: task.Destination, URL: u, Bytes: staged.written}, nil
}

// networkError classifies a request failure: cancellation of the caller's context is fatal, anything else (including
// the idle timeout) moves on to the next URL.
func (e *Engine) networkError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}
	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("no data for %v: %w", e.timeout, err)
	}
	return &attemptError{kind: FailureNetwork, err: err}
}

func cancelled(err error) error {
	return &attemptError{kind: FailureCancelled, err: fmt.Errorf("download cancelled: %w", err), fatal: true}
}

func sizeMismatch(got, expected int64) error {
	return &attemptError{
		kind:  FailureSizeMismatch,
		err:   fmt.Errorf("size mismatch: received %d bytes, expected %d", got, expected),
		fatal: true,
	}
}

func joinErrors(errs []error) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all %d urls failed: %s", len(errs), strings.Join(msgs, "; "))
}

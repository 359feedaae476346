package session

import (
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/download"
	"github.com/alanbriolat/media-fetch/internal/pubsub"
	"github.com/alanbriolat/media-fetch/internal/sync_"
	"github.com/alanbriolat/media-fetch/resolve"
)

type Config struct {
	DefaultSavePath  string
	FileTemplate     *template.Template
	Database         Database
	ProviderRegistry *media_fetch.ProviderRegistry
	// Resolver and Engine are created with default options if nil.
	Resolver *resolve.Resolver
	Engine   *download.Engine
	// Whether the device can decode high-efficiency codecs, see variant.SelectBest.
	SupportsEfficientCodec bool
	// Minimum interval between DownloadUpdated events from progress updates.
	ProgressUpdateInterval time.Duration
}

var DefaultConfig = Config{
	DefaultSavePath:        ".",
	FileTemplate:           template.Must(template.New("target_file").Parse(media_fetch.DefaultTargetFileTemplate)),
	Database:               NilDatabase{},
	ProviderRegistry:       &media_fetch.DefaultProviderRegistry,
	ProgressUpdateInterval: 500 * time.Millisecond,
}

type downloadsByID = map[DownloadID]*Download
type downloadsByDestination = map[string]DownloadID

type Session struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger
	resolver  *resolve.Resolver
	engine    *download.Engine

	downloads    *sync_.RWMutexed[downloadsByID]
	destinations *sync_.Mutexed[downloadsByDestination]
	events       pubsub.Publisher[Event]
	loaded       chan struct{}
}

func New(config Config, ctx context.Context) (*Session, error) {
	if config.Database == nil {
		config.Database = NilDatabase{}
	}
	if config.ProviderRegistry == nil {
		config.ProviderRegistry = &media_fetch.DefaultProviderRegistry
	}
	if config.FileTemplate == nil {
		config.FileTemplate = DefaultConfig.FileTemplate
	}
	resolver := config.Resolver
	if resolver == nil {
		var err error
		if resolver, err = resolve.New(); err != nil {
			return nil, fmt.Errorf("failed to create resolver: %w", err)
		}
	}
	engine := config.Engine
	if engine == nil {
		engine = download.NewEngine()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("session"),
		resolver:  resolver,
		engine:    engine,

		downloads:    sync_.NewRWMutexed(make(downloadsByID)),
		destinations: sync_.NewMutexed(make(downloadsByDestination)),
		loaded:       make(chan struct{}),
	}
	s.events = pubsub.NewPublisher[Event]()
	// Asynchronously load existing downloads from the database; as long as client code does Subscribe before
	// ListDownloads, there's no chance that any downloads will be missed.
	go func() {
		defer close(s.loaded)
		states, err := s.config.Database.ListDownloads()
		if err != nil {
			s.log.Errorf("failed to load downloads: %v", err)
			return
		}
		for _, state := range states {
			ds := DownloadState{DownloadPersistentState: state}
			if _, err := s.insertDownload(ds); err != nil {
				s.log.Warnf("failed to restore download %v: %v", state.ID, err)
			}
		}
	}()
	return s, nil
}

// Loaded is closed once downloads stored in the Database have been restored.
func (s *Session) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *Session) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeFiltered subscribes to only the events for which f returns true.
func (s *Session) SubscribeFiltered(f func(Event) bool) (pubsub.ReceiverCloser[Event], error) {
	ch := pubsub.NewChannel[Event](pubsub.DefaultSubscriberBufSize)
	if err := s.events.AddSubscriber(pubsub.NewFilteredSender[Event](ch, f), true); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Session) ListDownloads() []*Download {
	var list []*Download
	_ = s.downloads.RLocked(func(downloads downloadsByID) error {
		list = make([]*Download, 0, len(downloads))
		for _, d := range downloads {
			list = append(list, d)
		}
		return nil
	})
	return list
}

func (s *Session) GetDownload(id DownloadID) (d *Download) {
	_ = s.downloads.RLocked(func(downloads downloadsByID) error {
		d = downloads[id]
		return nil
	})
	return d
}

// claimDestination reserves a destination path for one download at a time.
func (s *Session) claimDestination(path string, id DownloadID) error {
	return s.destinations.Locked(func(destinations downloadsByDestination) error {
		if owner, ok := destinations[path]; ok && owner != id {
			return fmt.Errorf("%w: %v", ErrDestinationBusy, path)
		}
		destinations[path] = id
		return nil
	})
}

func (s *Session) releaseDestination(id DownloadID) {
	_ = s.destinations.Locked(func(destinations downloadsByDestination) error {
		for path, owner := range destinations {
			if owner == id {
				delete(destinations, path)
			}
		}
		return nil
	})
}

// RemoveDownload stops a download and forgets it, including in the Database. Downloaded files are kept.
func (s *Session) RemoveDownload(id DownloadID) error {
	var d *Download
	err := s.downloads.Locked(func(downloads downloadsByID) error {
		var ok bool
		if d, ok = downloads[id]; !ok {
			return fmt.Errorf("unknown download %v", id)
		}
		delete(downloads, id)
		return nil
	})
	if err != nil {
		return err
	}
	state, err := d.State()
	d.Close()
	s.events.Send(DownloadRemoved{downloadEvent{d}})
	if err != nil {
		return err
	}
	return s.config.Database.DeleteDownload(&state.DownloadPersistentState)
}

func (s *Session) Close() {
	s.ctxCancel()
	<-s.loaded
	downloads := s.downloads.Swap(nil)
	var wg sync.WaitGroup
	wg.Add(len(downloads))
	for _, d := range downloads {
		go func(d *Download) {
			d.Close()
			wg.Done()
		}(d)
	}
	wg.Wait()
	s.events.Close()
}

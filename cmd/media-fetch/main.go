package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"text/template"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/async"
	"github.com/alanbriolat/media-fetch/database"
	"github.com/alanbriolat/media-fetch/download"
	"github.com/alanbriolat/media-fetch/internal/boltdb"
	"github.com/alanbriolat/media-fetch/internal/config"
	"github.com/alanbriolat/media-fetch/internal/session"
	_ "github.com/alanbriolat/media-fetch/providers"
	"github.com/alanbriolat/media-fetch/resolve"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := logConfig.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = media_fetch.WithLogger(ctx, logger)

	app := &cli.App{
		Name:  "media-fetch",
		Usage: "resolve share links and download the best playable media",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logConfig.Level.SetLevel(zap.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			classifyCommand(ctx),
			resolveCommand(ctx),
			selectCommand(ctx),
			fetchCommand(ctx),
			resumeCommand(ctx),
			historyCommand(ctx),
			configCommand(ctx),
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		stop()
		err = <-result
		if err != nil {
			logger.Fatal(err.Error())
		}
	}
}

// historyStore is a session.Database that also remembers resolved links.
type historyStore interface {
	session.Database
	resolve.Store
}

// environment is everything built from the configuration that commands share.
type environment struct {
	config   *config.Config
	resolver *resolve.Resolver
	engine   *download.Engine
	history  historyStore
	closers  []func()
}

func newEnvironment(c *cli.Context) (*environment, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, err
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		return nil, err
	}
	env := &environment{config: cfg}
	if err := env.openHistory(); err != nil {
		env.Close()
		return nil, err
	}

	resolveOpts := []resolve.Option{
		resolve.WithProfiles(profiles),
		resolve.WithCacheSize(cfg.Resolve.CacheSize),
		resolve.WithTimeout(cfg.Resolve.Timeout),
		resolve.WithMaxRedirects(cfg.Resolve.MaxRedirects),
	}
	if store, err := env.openLinkStore(); err != nil {
		env.Close()
		return nil, err
	} else if store != nil {
		resolveOpts = append(resolveOpts, resolve.WithStore(store))
	}
	if env.resolver, err = resolve.New(resolveOpts...); err != nil {
		env.Close()
		return nil, err
	}
	env.engine = download.NewEngine(
		download.WithProfiles(profiles),
		download.WithTimeout(cfg.Download.Timeout),
		download.WithChunkSize(cfg.Download.ChunkSize),
		download.WithProgressThreshold(cfg.Download.ProgressThreshold),
		download.WithTempDir(cfg.TempDir),
	)
	return env, nil
}

func (e *environment) openHistory() error {
	cfg := e.config.History
	if cfg.Driver == config.HistoryDriverNone {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return err
	}
	switch cfg.Driver {
	case config.HistoryDriverBolt:
		db, err := boltdb.New(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		e.history = db
		e.closers = append(e.closers, func() { _ = db.Close() })
	default:
		db, err := database.Open(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		e.history = db
		e.closers = append(e.closers, db.Close)
	}
	return nil
}

// openLinkStore opens the bolt file remembering resolved links, which may be the bolt history file itself.
func (e *environment) openLinkStore() (resolve.Store, error) {
	path := e.config.Resolve.LinkStore
	if path == "-" {
		return nil, nil
	}
	if e.history != nil && (e.config.History.Driver == config.HistoryDriverBolt && e.config.History.Path == path) {
		return e.history, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	db, err := boltdb.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open link store: %w", err)
	}
	e.closers = append(e.closers, func() { _ = db.Close() })
	return db, nil
}

func (e *environment) sessionConfig() (session.Config, error) {
	tmpl, err := template.New("target_file").Parse(e.config.FileTemplate)
	if err != nil {
		return session.Config{}, fmt.Errorf("invalid file template: %w", err)
	}
	cfg := session.DefaultConfig
	cfg.DefaultSavePath = e.config.OutputDir
	cfg.FileTemplate = tmpl
	cfg.Resolver = e.resolver
	cfg.Engine = e.engine
	cfg.SupportsEfficientCodec = e.config.EfficientCodec
	if e.history != nil {
		cfg.Database = e.history
	}
	return cfg, nil
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

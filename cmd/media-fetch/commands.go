package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/r3labs/diff/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/database"
	"github.com/alanbriolat/media-fetch/internal/config"
	"github.com/alanbriolat/media-fetch/internal/session"
	"github.com/alanbriolat/media-fetch/resolve"
	"github.com/alanbriolat/media-fetch/variant"
)

func classifyCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "print the platform of each URL",
		ArgsUsage: "URL...",
		Action: func(c *cli.Context) error {
			for _, u := range c.Args().Slice() {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", media_fetch.Classify(u), u)
			}
			return nil
		},
	}
}

func resolveCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "follow redirects of short links to their canonical URL",
		ArgsUsage: "URL...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-redirects",
				Usage: "stop after `N` redirects (default from config)",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := newEnvironment(c)
			if err != nil {
				return err
			}
			defer env.Close()
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			for _, u := range c.Args().Slice() {
				var link resolve.CanonicalLink
				if max := c.Int("max-redirects"); max > 0 {
					link = env.resolver.ResolveMax(ctx, u, max)
				} else {
					link = env.resolver.Resolve(ctx, u)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", link.Platform(), link.URL, link.Redirects, link.Stop, link.Err)
			}
			return w.Flush()
		},
	}
}

func selectCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "choose the best variant from a JSON candidate list",
		Flags: []cli.Flag{
			candidatesFlag,
			fallbackFlag,
			efficientCodecFlag,
		},
		Action: func(c *cli.Context) error {
			path := c.String("candidates")
			if path == "" {
				path = "-"
			}
			candidates, err := readCandidates(path, c.StringSlice("fallback"))
			if err != nil {
				return err
			}
			result := variant.SelectBest(candidates.Variants, candidates.FallbackURLs, c.Bool("efficient-codec"))
			if result.IsNone() {
				return session.ErrNoVariant
			}
			sel := result.Unwrap()
			fmt.Fprintf(c.App.Writer, "tier:     %s\nurl:      %s\n", sel.Tier, sel.URL)
			if sel.Candidate.CodecLabel != "" || sel.Candidate.QualityLabel != "" {
				fmt.Fprintf(c.App.Writer, "variant:  %s %s %d bps\n", sel.Candidate.CodecLabel, sel.Candidate.QualityLabel, sel.Candidate.Bitrate)
			}
			if sel.IsDegraded() {
				fmt.Fprintf(c.App.Writer, "degraded: %s\n", sel.Degraded)
			}
			for _, alt := range sel.URLs()[1:] {
				fmt.Fprintf(c.App.Writer, "fallback: %s\n", alt)
			}
			for _, rejected := range sel.Rejected {
				fmt.Fprintf(c.App.Writer, "rejected: %s (%s)\n", rejected.Candidate.URL, rejected.Reason)
			}
			return nil
		},
	}
}

var (
	candidatesFlag = &cli.StringFlag{
		Name:  "candidates",
		Usage: "read the candidate list as JSON from `FILE` (- for stdin)",
	}
	fallbackFlag = &cli.StringSliceFlag{
		Name:  "fallback",
		Usage: "add a fallback `URL`, tried when no candidate has a URL",
	}
	efficientCodecFlag = &cli.BoolFlag{
		Name:  "efficient-codec",
		Usage: "the player can decode high-efficiency codecs",
	}
)

// readCandidates decodes a media_fetch.Candidates document from path and adds extra fallback URLs.
func readCandidates(path string, fallbacks []string) (*media_fetch.Candidates, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var candidates media_fetch.Candidates
	if err := json.NewDecoder(r).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("invalid candidate list: %w", err)
	}
	candidates.FallbackURLs = append(candidates.FallbackURLs, fallbacks...)
	return &candidates, nil
}

func fetchCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "download the best variant behind each link",
		ArgsUsage: "URL...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "save downloaded media to `DIR` (default from config)",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "save as `NAME` instead of using the file template (single URL only)",
			},
			candidatesFlag,
			fallbackFlag,
			efficientCodecFlag,
		},
		Action: func(c *cli.Context) error {
			urls := c.Args().Slice()
			if len(urls) == 0 {
				return errors.New("no URLs given")
			}
			var candidates *media_fetch.Candidates
			if path := c.String("candidates"); path != "" || len(c.StringSlice("fallback")) > 0 {
				if len(urls) > 1 {
					return errors.New("--candidates and --fallback need exactly one URL")
				}
				candidates = &media_fetch.Candidates{}
				if path != "" {
					var err error
					if candidates, err = readCandidates(path, nil); err != nil {
						return err
					}
				}
				candidates.FallbackURLs = append(candidates.FallbackURLs, c.StringSlice("fallback")...)
			}
			if c.String("output") != "" && len(urls) > 1 {
				return errors.New("--output needs exactly one URL")
			}
			return withSession(ctx, c, func(ses *session.Session) error {
				var failed int
				for _, u := range urls {
					d, err := ses.AddDownload(u, &session.AddDownloadOptions{
						SavePath:   c.String("target"),
						Filename:   c.String("output"),
						Candidates: candidates,
					})
					if err != nil {
						return err
					}
					if !runDownload(ctx, ses, d) {
						failed++
					}
					if ctx.Err() != nil {
						return nil
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d downloads failed", failed, len(urls))
				}
				return nil
			})
		},
	}
}

func resumeCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "restart unfinished downloads from the history",
		Action: func(c *cli.Context) error {
			return withSession(ctx, c, func(ses *session.Session) error {
				var pending []*session.Download
				for _, d := range ses.ListDownloads() {
					if !d.IsComplete() {
						pending = append(pending, d)
					}
				}
				zap.S().Infof("%d unfinished downloads", len(pending))
				for _, d := range pending {
					runDownload(ctx, ses, d)
					if ctx.Err() != nil {
						break
					}
				}
				return nil
			})
		},
	}
}

// withSession runs f with a Session built from the configuration, showing progress of its downloads.
func withSession(ctx context.Context, c *cli.Context, f func(*session.Session) error) error {
	logger := media_fetch.Logger(ctx).Sugar()
	env, err := newEnvironment(c)
	if err != nil {
		return err
	}
	defer env.Close()
	if c.Bool("efficient-codec") {
		env.config.EfficientCodec = true
	}
	cfg, err := env.sessionConfig()
	if err != nil {
		return err
	}
	ses, err := session.New(cfg, ctx)
	if err != nil {
		return err
	}
	events, err := ses.Subscribe()
	if err != nil {
		ses.Close()
		return err
	}
	<-ses.Loaded()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bars := make(map[session.DownloadID]*progressbar.ProgressBar)
		for event := range events.Receive() {
			switch e := event.(type) {
			case session.DownloadUpdated:
				logStateChanges(logger, e)
				updateProgress(bars, e)
			case session.DownloadStopped:
				if bar, ok := bars[e.Download().ID]; ok {
					_ = bar.Finish()
					delete(bars, e.Download().ID)
				}
			}
		}
	}()

	err = f(ses)
	ses.Close()
	<-done
	return err
}

// runDownload starts d and waits for it to stop, returning true if it completed.
func runDownload(ctx context.Context, ses *session.Session, d *session.Download) bool {
	logger := media_fetch.Logger(ctx).Sugar()
	stopped, err := ses.SubscribeFiltered(func(e session.Event) bool {
		_, ok := e.(session.DownloadStopped)
		return ok && e.Download() == d
	})
	if err != nil {
		logger.Error(err.Error())
		return false
	}
	defer stopped.Close()
	d.Start()
	select {
	case event, ok := <-stopped.Receive():
		if !ok {
			return false
		}
		e := event.(session.DownloadStopped)
		state, err := d.State()
		if err != nil {
			return false
		}
		if e.Err != nil {
			logger.Errorf("%s: %v", state.URL, e.Err)
			return false
		}
		if state.Degraded != "" {
			logger.Warnf("%s: degraded download: %s", state.URL, state.Degraded)
		}
		logger.Infof("saved %s (%d bytes)", state.Path, state.Bytes)
		return true
	case <-ctx.Done():
		logger.Info("Exiting gracefully...")
		d.Stop()
		return false
	}
}

func logStateChanges(logger *zap.SugaredLogger, e session.DownloadUpdated) {
	if !logger.Desugar().Core().Enabled(zap.DebugLevel) {
		return
	}
	changes, err := diff.Diff(e.OldState, e.NewState)
	if err != nil {
		logger.Errorf("failed to diff old and new download state: %v", err)
		return
	}
	for _, change := range changes {
		logger.Debugf("%v: %v: %#v -> %#v", e.Download().ID, strings.Join(change.Path, "."), change.From, change.To)
	}
}

func updateProgress(bars map[session.DownloadID]*progressbar.ProgressBar, e session.DownloadUpdated) {
	state := e.NewState
	if state.Status != session.DownloadStatusDownloading {
		return
	}
	bar, ok := bars[state.ID]
	if !ok {
		max := state.TotalBytes
		if state.Indeterminate {
			max = -1
		}
		bar = progressbar.DefaultBytes(max, string(state.Platform))
		bars[state.ID] = bar
	} else if !state.Indeterminate && bar.GetMax64() != state.TotalBytes {
		// A new attempt may report a different size
		bar.ChangeMax64(state.TotalBytes)
	}
	_ = bar.Set64(state.BytesRead)
}

func historyCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list past downloads",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "show at most `N` downloads",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "only show downloads with `STATUS` (e.g. complete, error)",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := newEnvironment(c)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.history == nil {
				return errors.New("history is disabled in the configuration")
			}
			status := session.DownloadStatus(c.String("status"))
			var states []session.DownloadPersistentState
			if db, ok := env.history.(*database.Database); ok {
				states, err = db.RecentDownloads(c.Int("limit"), status)
			} else {
				states, err = recentDownloads(env.history, c.Int("limit"), status)
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			for _, s := range states {
				detail := s.Path
				if s.Status == session.DownloadStatusError {
					detail = s.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.AddedAt.Format("2006-01-02 15:04"), s.Status, s.Platform, s.URL, detail)
			}
			return w.Flush()
		},
	}
}

// recentDownloads filters and orders a full listing for stores without a query interface.
func recentDownloads(db session.Database, limit int, status session.DownloadStatus) ([]session.DownloadPersistentState, error) {
	all, err := db.ListDownloads()
	if err != nil {
		return nil, err
	}
	var states []session.DownloadPersistentState
	for _, s := range all {
		if status == session.DownloadStatusUndefined || s.Status == status {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].AddedAt.After(states[j].AddedAt) })
	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

func configCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "show or create the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "path",
				Usage: "print the default configuration file path",
				Action: func(c *cli.Context) error {
					path, err := config.ConfigPath()
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "write a configuration file with default values",
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if path == "" {
						var err error
						if path, err = config.ConfigPath(); err != nil {
							return err
						}
					}
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists", path)
					}
					if err := config.Save(config.DefaultConfig(), path); err != nil {
						return err
					}
					media_fetch.Logger(ctx).Sugar().Infof("wrote %s", path)
					return nil
				},
			},
		},
	}
}

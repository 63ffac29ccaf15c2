package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"castdl/pkg/archive"
	"castdl/pkg/browser"
	"castdl/pkg/config"
	"castdl/pkg/cookies"
	"castdl/pkg/crawler"
	"castdl/pkg/fetch"
	applog "castdl/pkg/log"
	"castdl/pkg/mux"
	"castdl/pkg/parse"
	"castdl/pkg/passcode"
	"castdl/pkg/storage"
	"castdl/pkg/utils"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Setup Signal Handling ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v. Initiating graceful shutdown...\n", sig)
		cancel()
		select {
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "Received second signal: %v. Forcing exit.\n", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "Graceful shutdown timed out after 30 seconds. Forcing exit.")
			os.Exit(1)
		}
	}()

	app := newApp(os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Run cancelled gracefully.")
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "castdl: %v\n", err)
		os.Exit(1)
	}
}

// appFlags returns the command line flags shared by the app and its tests.
func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "link", Aliases: []string{"l"}, Required: true, Usage: "channel, listing, video or manifest `URL`"},
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "scrape output `FILE` name (.txt is appended when missing)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "save videos to `DIR` (overrides config)"},
		&cli.BoolFlag{Name: "scrape", Aliases: []string{"s"}, Usage: "record manifest URLs instead of downloading"},
		&cli.StringFlag{Name: "passcode-file", Aliases: []string{"f"}, Usage: "read passcode candidates from `FILE`, one per line"},
		&cli.StringSliceFlag{Name: "passcode", Aliases: []string{"p"}, Usage: "passcode candidate (repeatable)"},
		&cli.StringFlag{Name: "archive", Aliases: []string{"a"}, Usage: "skip and record processed video URLs in `FILE`"},
		&cli.StringFlag{Name: "cookies", Aliases: []string{"c"}, Usage: "read tc_id and tc_ss from `FILE`"},
		&cli.StringFlag{Name: "config", Usage: "path to the YAML configuration `FILE`"},
		&cli.StringFlag{Name: "loglevel", Value: "info", Usage: "log level (trace, debug, info, warn, error, fatal, panic)"},
		&cli.StringFlag{Name: "state-dir", Usage: "keep a per-channel outcome database in `DIR` (overrides config)"},
		&cli.BoolFlag{Name: "resume", Usage: "reuse the existing outcome database instead of starting fresh"},
		&cli.BoolFlag{Name: "skip-succeeded", Usage: "skip videos the outcome database marks as done (implies --resume)"},
		&cli.StringFlag{Name: "write-status-log", Usage: "export the outcome database to `FILE` after the run"},
		&cli.StringFlag{Name: "summary", Usage: "write a YAML run summary to `FILE`"},
		&cli.BoolFlag{Name: "progress", Usage: "show a progress bar for listing runs"},
	}
}

func newApp(logOut io.Writer) *cli.App {
	return &cli.App{
		Name:                      "castdl",
		Usage:                     "archive a channel's videos or a single video",
		Flags:                     appFlags(),
		DisableSliceFlagSeparator: true,
		HideHelpCommand:           true,
		Action: func(c *cli.Context) error {
			log, err := applog.New(logOut, c.String("loglevel"))
			if err != nil {
				log.Warnf("%v, using %s", err, log.GetLevel())
			}

			appCfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			applyOverrides(appCfg, c)
			warnings, err := appCfg.Validate()
			if err != nil {
				return err
			}
			for _, w := range warnings {
				log.Warnf("Config: %s", w)
			}

			opts := optionsFromContext(c)
			warnings, err = opts.Validate()
			if err != nil {
				return err
			}
			for _, w := range warnings {
				log.Warnf("Options: %s", w)
			}

			logAppConfig(appCfg, log)
			return run(c.Context, appCfg, &opts, log)
		},
	}
}

// loadConfig reads the YAML configuration at path. An empty path yields a
// zero config that Validate fills with defaults.
func loadConfig(path string) (*config.AppConfig, error) {
	cfg := &config.AppConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyOverrides copies the flags that shadow config file values.
func applyOverrides(cfg *config.AppConfig, c *cli.Context) {
	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}
	if c.IsSet("state-dir") {
		cfg.StateDir = c.String("state-dir")
	}
}

func optionsFromContext(c *cli.Context) config.RunOptions {
	return config.RunOptions{
		Link:          c.String("link"),
		Name:          c.String("name"),
		ScrapeOnly:    c.Bool("scrape"),
		ArchivePath:   c.String("archive"),
		CookieFile:    c.String("cookies"),
		Passcodes:     c.StringSlice("passcode"),
		PasscodeFile:  c.String("passcode-file"),
		SummaryPath:   c.String("summary"),
		StatusLogPath: c.String("write-status-log"),
		ShowProgress:  c.Bool("progress"),
		ResumeState:   c.Bool("resume"),
		SkipSucceeded: c.Bool("skip-succeeded"),
	}
}

// loadPasscodes builds the candidate set from the file or the flag list.
func loadPasscodes(opts *config.RunOptions) (*passcode.Set, error) {
	if opts.PasscodeFile != "" {
		return passcode.LoadFile(opts.PasscodeFile)
	}
	return passcode.NewSet(opts.Passcodes), nil
}

func loadSession(path string) (cookies.Session, error) {
	if path == "" {
		return cookies.Session{}, nil
	}
	return cookies.Load(path)
}

// newSinkOpener picks where resolved manifests go. Direct manifests are
// always muxed; everything else follows the scrape flag.
func newSinkOpener(cfg *config.AppConfig, opts *config.RunOptions, session cookies.Session, direct bool, log *logrus.Entry) crawler.SinkOpener {
	return func(channel string, kind parse.Kind) (mux.Sink, error) {
		if opts.ScrapeOnly && !direct {
			name := opts.Name
			if name == "" {
				name = mux.DefaultScrapeName(channel, kind)
			}
			return mux.NewScrapeWriter(filepath.Join(cfg.OutputDir, name), log.WithField("component", "scrape"))
		}
		muxer := mux.NewFFmpegMuxer(
			cfg.Muxer.Path,
			cfg.UserAgent,
			fetch.Origin(cfg.Domain),
			session.Header(),
			config.GetEffectiveLogProgress(cfg.Muxer),
			log.WithField("component", "ffmpeg"),
		)
		if !muxer.Available() {
			return nil, fmt.Errorf("%w: %s not found", utils.ErrMuxing, cfg.Muxer.Path)
		}
		return muxer, nil
	}
}

func run(ctx context.Context, appCfg *config.AppConfig, opts *config.RunOptions, log *logrus.Logger) error {
	target, direct, err := parse.NewNormalizer(appCfg.Domain).Normalize(opts.Link)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(appCfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("%w: create output directory %s: %w", utils.ErrFilesystem, appCfg.OutputDir, err)
	}

	session, err := loadSession(opts.CookieFile)
	if err != nil {
		return err
	}
	passcodes, err := loadPasscodes(opts)
	if err != nil {
		return err
	}
	ledger, err := archive.Load(opts.ArchivePath)
	if err != nil {
		return err
	}
	if ledger.Enabled() {
		log.Infof("Archive ledger %s holds %d videos", ledger.Path(), ledger.Len())
	}

	// --- Setup Fetch Stack ---
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, applog.Component(log, "http"))
	fetcher := fetch.NewFetcher(httpClient, appCfg, applog.Component(log, "fetcher"))
	limiter := fetch.NewRateLimiter(appCfg.DelayPerRequest, applog.Component(log, "ratelimit"))
	pages := fetch.NewPageFetcher(fetcher, limiter, appCfg, session.Header(), applog.Component(log, "pages"))

	resolver := passcode.NewResolver(
		browser.Factory(browser.OptionsFromConfig(appCfg, session), applog.Component(log, "browser")),
		appCfg.Browser.PrimaryWait,
		appCfg.Browser.ConfirmWait,
		applog.Component(log, "passcode"),
	)

	mode := "download"
	if opts.ScrapeOnly {
		mode = "scrape"
	}
	deps := crawler.Deps{
		Config:    appCfg,
		Pages:     pages,
		Resolver:  resolver,
		Passcodes: passcodes,
		Ledger:    ledger,
		OpenSink:  newSinkOpener(appCfg, opts, session, direct != nil, applog.Component(log, "sink")),
		Summary:   crawler.NewSummaryWriter(opts.SummaryPath, applog.Component(log, "summary")).WithMode(mode),
		Log:       applog.Component(log, "crawler"),
	}

	// --- Setup Outcome Database (Optional) ---
	var store *storage.BadgerStore
	if appCfg.StateDir != "" && direct == nil {
		store, err = storage.NewBadgerStore(ctx, appCfg.StateDir, target.ChannelID, opts.ResumeState, applog.Component(log, "storage"))
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Errorf("Error closing outcome database: %v", closeErr)
			}
		}()
		go store.RunGC(ctx, 10*time.Minute)
		deps.Store = store
	}

	c, err := crawler.New(deps, crawler.Options{
		SkipSucceeded: opts.SkipSucceeded,
		ShowProgress:  opts.ShowProgress,
	})
	if err != nil {
		return err
	}

	var res crawler.Result
	if direct != nil {
		res, err = c.RunDirect(ctx, *direct)
	} else {
		log.Infof("Crawling %s (%s, channel %s)", target.Base, target.Kind, target.ChannelID)
		res, err = c.Run(ctx, target)
	}

	// Written before the deferred Close so the database is still open
	if store != nil && opts.StatusLogPath != "" {
		if ctx.Err() != nil {
			log.Warnf("Skipping status log due to context error: %v", ctx.Err())
		} else if writeErr := store.WriteStatusLog(opts.StatusLogPath); writeErr != nil {
			log.Errorf("Error writing status log: %v", writeErr)
		}
	}

	if err != nil {
		return err
	}
	if recoverable := res.Err(); recoverable != nil {
		log.Warnf("Run finished with %d failed videos", res.Failed)
	}
	log.Info("Run completed.")
	return nil
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Domain:%s, OutputDir:%s, MemberSubdir:%s, StateDir:%s",
		appCfg.Domain, appCfg.OutputDir, appCfg.MemberSubdir, appCfg.StateDir)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v, DelayPerRequest:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay, appCfg.DelayPerRequest)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Config Muxer: Path:%s, LogProgress:%t", appCfg.Muxer.Path, config.GetEffectiveLogProgress(appCfg.Muxer))
	log.Infof("Config Browser: Headless:%t, PrimaryWait:%v, ConfirmWait:%v",
		config.GetEffectiveHeadless(appCfg.Browser), appCfg.Browser.PrimaryWait, appCfg.Browser.ConfirmWait)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/aitides/aitides/pkg/config"
	"github.com/aitides/aitides/pkg/content"
	"github.com/aitides/aitides/pkg/digest"
	"github.com/aitides/aitides/pkg/ingest"
	"github.com/aitides/aitides/pkg/llm"
	"github.com/aitides/aitides/pkg/pipeline"
	"github.com/aitides/aitides/pkg/refiner"
	"github.com/aitides/aitides/pkg/repository"
	"github.com/aitides/aitides/pkg/scorer"
	"github.com/aitides/aitides/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`
	Serve  bool   `short:"s" long:"serve" env:"SERVE" description:"serve the API after the run"`
	NoRun  bool   `long:"no-run" description:"skip the pipeline run, only serve"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	var secrets []string
	if cfg.LLM.APIKey != "" {
		secrets = append(secrets, cfg.LLM.APIKey)
	}
	setupLog(opts.Debug, secrets...)
	log.Printf("[INFO] starting aitides version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Print("[INFO] shutdown complete")
}

// run wires the components and executes the pipeline and/or the server
func run(ctx context.Context, cfg *config.Config, opts Opts) error {
	store, err := repository.New(ctx, repository.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("[WARN] store close failed: %v", closeErr)
		}
	}()

	if !opts.NoRun {
		remote := llm.New(cfg.LLM)
		fetcher := ingest.New(cfg.Feeds, 30*time.Second, cfg.Extract.UserAgent)
		extractor := content.New(cfg.Extract)
		sc := scorer.New(remote, cfg.Scoring, cfg.LLM.BatchSize, cfg.LLM.Concurrency)
		rf := refiner.New(remote, cfg.Quota.Domain(), refiner.NewTagger(cfg.Tags), cfg.LLM.Concurrency)
		asm := digest.New(cfg.LedgerCap)

		p := pipeline.New(cfg, fetcher, extractor, sc, rf, asm, store)
		d, err := p.Run(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("pipeline run: %w", err)
		}
		log.Printf("[INFO] digest %s: %d papers, %d news", d.Date, len(d.Papers), len(d.News))
	}

	if opts.Serve || opts.NoRun {
		srv := server.New(cfg, store, revision, opts.Debug)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}

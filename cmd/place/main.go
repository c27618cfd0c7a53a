// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the place command, which prints the current location of the device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wneessen/place/internal/config"
	"github.com/wneessen/place/internal/i18n"
	"github.com/wneessen/place/internal/location"
	"github.com/wneessen/place/internal/logger"
	"github.com/wneessen/place/internal/presenter"
	"github.com/wneessen/place/internal/service"
)

// Exit codes for failures that are not a location status. They are taken from sysexits.h and
// stay clear of the location.Status values.
const (
	exitSoftware = 70
	exitConfig   = 78
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	config    string
	json      bool
	format    string
	placemark bool
	timeout   time.Duration
	accuracy  float64
	watch     bool
	version   bool
	set       map[string]bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// run executes the command and returns its exit code: the location.Status of a query, or
// exitConfig and exitSoftware for failures outside the query.
func run(ctx context.Context, args []string) int {
	log := logger.New(slog.LevelError)
	f, err := parseFlags(flag.NewFlagSet("place", flag.ContinueOnError), args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return exitConfig
	}
	if f.version {
		fmt.Printf("place %s (commit: %s, built: %s)\n", version, commit, date)
		return 0
	}

	conf, err := loadConfig(f.config)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		return exitConfig
	}
	log = logger.New(conf.LogLevel)

	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		return exitSoftware
	}
	format, tpl := outputFormat(f, conf)
	pres, err := presenter.New(format, tpl, conf.Locale, t)
	if err != nil {
		log.Error("failed to initialize presenter", logger.Err(err))
		return exitConfig
	}

	serv, err := service.New(ctx, conf, log, pres)
	if err != nil {
		log.Error("failed to initialize place service", logger.Err(err))
		return exitSoftware
	}
	defer func() {
		if err := serv.Close(); err != nil {
			log.Error("failed to close place service", logger.Err(err))
		}
	}()

	if f.watch {
		log.Info("starting place service", slog.String("version", version),
			slog.String("commit", commit), slog.String("date", date))
		if err = serv.Run(ctx); err != nil {
			log.Error("failed to run place service", logger.Err(err))
			return exitSoftware
		}
		log.Info("shutting down place service")
		return 0
	}

	loc, err := serv.CurrentLocation(ctx, queryOptions(f, serv.Options()))
	if err != nil {
		status := location.StatusOf(err)
		fmt.Fprintln(os.Stderr, status.Error())
		return int(status)
	}
	if err = serv.Render(loc); err != nil {
		log.Error("failed to print location", logger.Err(err))
		return exitSoftware
	}
	return 0
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	f := flags{set: make(map[string]bool)}
	fs.StringVar(&f.config, "config", "", "path to the config file")
	fs.BoolVar(&f.json, "json", false, "print the location as JSON")
	fs.StringVar(&f.format, "format", "", "print the location using the given text/template")
	fs.BoolVar(&f.placemark, "placemark", false, "reverse geocode the location")
	fs.DurationVar(&f.timeout, "timeout", 0, "maximum time to wait for a location fix")
	fs.Float64Var(&f.accuracy, "accuracy", 0, "desired horizontal accuracy in meters")
	fs.BoolVar(&f.watch, "watch", false, "keep tracking the location and print every change")
	fs.BoolVar(&f.version, "version", false, "print version information")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	fs.Visit(func(fl *flag.Flag) {
		f.set[fl.Name] = true
	})
	return f, nil
}

// queryOptions overrides the configured options with the flags given on the command line.
func queryOptions(f flags, opts location.Options) location.Options {
	if f.set["placemark"] {
		opts.WithPlacemark = f.placemark
	}
	if f.set["timeout"] {
		opts.Timeout = f.timeout
	}
	if f.set["accuracy"] {
		opts.DesiredAccuracy = f.accuracy
	}
	return opts
}

// outputFormat selects JSON over a template over the human readable text.
func outputFormat(f flags, conf *config.Config) (presenter.Format, string) {
	switch {
	case f.json:
		return presenter.FormatJSON, ""
	case f.format != "":
		return presenter.FormatTemplate, f.format
	case conf.Templates.Text != "":
		return presenter.FormatTemplate, conf.Templates.Text
	default:
		return presenter.FormatText, ""
	}
}

// loadConfig reads the given config file, the one in the default location or only the
// environment, in this order.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", config.AppName, "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}

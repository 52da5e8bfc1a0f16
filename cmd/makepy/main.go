// Copyright 2026 The makepy Authors
// SPDX-License-Identifier: Apache-2.0

// Command makepy is the runtime build tool: it loads one or more rule
// loader plugins, builds the requested goals, and persists fingerprint
// state across invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/makepy/makepy"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "makepy: %s\n", err)
		var be *makepy.BuildError
		if logrus.IsLevelEnabled(logrus.DebugLevel) && errors.As(err, &be) {
			fmt.Fprintln(os.Stderr, be.Stack())
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "makepy",
		Usage:     "parallel, incremental build engine",
		ArgsUsage: "[GOAL...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "clean",
				Aliases: []string{"c"},
				Usage:   "remove persisted state before building",
			},
			&cli.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "rule loader plugin to process (repeatable)",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "worker count (default: hardware thread count)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "echo every command; disables the progress line",
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "KEY=VALUE, populates ctx.vars (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "no-parallel",
				Usage: "serial execution",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logrus level: trace, debug, info, warn, error",
				Sources: cli.EnvVars("MAKEPY_LOG_LEVEL"),
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, k, err := makepy.LoadConfig(wd)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level := cfg.LogLevel
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	configureLogging(level)

	files := cmd.StringSlice("file")
	if len(files) == 0 {
		files = []string{k.String("loader_file")}
	}

	goals := cmd.Args().Slice()

	buildCtx := makepy.NewContext(wd)
	for _, arg := range cmd.StringSlice("var") {
		key, value, ok := makepy.ParseVarFlag(arg)
		if !ok {
			return fmt.Errorf("malformed --var %q, expected KEY=VALUE", arg)
		}
		buildCtx.Vars.Set(key, value)
	}

	for _, f := range files {
		if err := makepy.LoadPlugin(buildCtx, f); err != nil {
			return err
		}
	}

	store := makepy.NewStore()
	dirs := buildCtx.Dirs()
	if err := store.LoadAll(dirs); err != nil {
		return err
	}

	if cmd.Bool("clean") {
		if err := store.Clean(dirs); err != nil {
			return err
		}
	}

	jobs := cmd.Int("jobs")
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	serial := cmd.Bool("no-parallel")
	verbose := cmd.Bool("verbose")

	progressWidth := 0
	if !verbose && !serial {
		progressWidth = k.Int("progress_width")
	}

	buildErr := makepy.Build(buildCtx, store, goals, jobs, serial, verbose, progressWidth)

	store.CleanStaleTargets(buildCtx)

	if err := store.SaveAll(); err != nil {
		if buildErr == nil {
			return err
		}
		logrus.WithError(err).Warn("failed to persist fingerprint database after build failure")
	}

	return buildErr
}

func configureLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.WarnLevel
	}
	logrus.SetLevel(parsed)
}

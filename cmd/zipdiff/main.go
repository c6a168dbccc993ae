package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/zipdiff/pkg/compare"
	"github.com/tqbf/zipdiff/pkg/config"
	"github.com/tqbf/zipdiff/pkg/paths"
)

const appVersion = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "zipdiff",
		Usage: "package the files that changed between two builds",
		Before: func(c *cli.Context) error {
			configureLogging(c.Bool("verbose"))
			if c.Bool("no-color") {
				color.NoColor = true
			}
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				EnvVars: []string{"ZIPDIFF_CONFIG"},
				Usage:   "config file (default " + config.DefaultFile + " if present)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "operation timeout",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable coloured output",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
		},
		Commands: []*cli.Command{
			buildCmd(),
			diffCmd(),
			doctorCmd(),
			{
				Name:  "version",
				Usage: "print version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, appVersion)
					return nil
				},
			},
		},
	}
}

func engineFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "engine",
		EnvVars: []string{"ZIPDIFF_ENGINE"},
		Usage:   "comparison engine: diff or native",
	}
}

func compareFlags() []cli.Flag {
	return []cli.Flag{
		engineFlag(),
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "exclude path or glob pattern (repeatable)",
		},
	}
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}

func contextWithTimeout(
	c *cli.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(
		c.Context,
		c.Duration("timeout"),
	)
}

// stringOption resolves a setting from flag, then config file, then def.
func stringOption(
	c *cli.Context, name, fromFile, def string,
) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if fromFile != "" {
		return fromFile
	}
	return def
}

func runnerFor(engine string) (compare.Runner, error) {
	switch engine {
	case "", "diff":
		return compare.DiffRunner{}, nil
	case "native":
		return compare.WalkRunner{}, nil
	}
	return nil, fmt.Errorf(
		"unknown engine %q (want diff or native)", engine,
	)
}

// compareOptions builds comparison options from the defaults, the config
// file and the command's flags. Exclusions only ever grow.
func compareOptions(
	c *cli.Context, cfg config.Config,
) (compare.Options, error) {
	opts := compare.DefaultOptions()
	runner, err := runnerFor(stringOption(c, "engine", cfg.Engine, ""))
	if err != nil {
		return compare.Options{}, err
	}
	opts.Runner = runner
	opts.Exclusions = opts.Exclusions.
		With(cfg.Exclude...).
		With(c.StringSlice("exclude")...)
	slog.Debug("compare options",
		"runner", fmt.Sprintf("%T", runner),
		"exclusions", opts.Exclusions.Entries(),
	)
	return opts, nil
}

func requireBuildDirs(c *cli.Context, usage string) (string, string, error) {
	if c.NArg() != 2 {
		return "", "", fmt.Errorf("usage: %s", usage)
	}
	oldDir, newDir := c.Args().Get(0), c.Args().Get(1)
	var missing []string
	for _, d := range []string{oldDir, newDir} {
		if !paths.IsDir(d) {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf(
			"build directories do not exist: %q", missing,
		)
	}
	return oldDir, newDir, nil
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf(
			"%.1f MB", float64(n)/(1<<20),
		)
	case n >= 1<<10:
		return fmt.Sprintf(
			"%.1f KB", float64(n)/(1<<10),
		)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

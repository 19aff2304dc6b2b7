// Package cli wires the cistat commands together: check a single
// build, analyze a window of builds, or download a build's logs.
package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cistat/cistat/config"
	"github.com/cistat/cistat/fetch"
)

const AppName = "cistat"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	cfg    config.Config
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cfg:    config.Default(),
		cli: &cli.App{
			Name:  AppName,
			Usage: "Inspect and aggregate CI build results",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "Path to a YAML config file",
				},
				&cli.StringFlag{
					Name:  "base-url",
					Usage: "CI server root URL (overrides config)",
				},
				&cli.StringFlag{
					Name:  "plan",
					Usage: "Build plan key, e.g. FRR-FRR (overrides config)",
				},
			},
		},
	}
	app.cli.Before = func(ctx *cli.Context) error {
		if ctx.Bool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		if path := ctx.String("config"); path != "" {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			app.cfg = cfg
		}
		if url := ctx.String("base-url"); url != "" {
			app.cfg.BaseURL = strings.TrimRight(url, "/")
		}
		if plan := ctx.String("plan"); plan != "" {
			app.cfg.Plan = plan
		}
		return nil
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "check",
		Usage:     "Fetch one build result page and report its outcome",
		ArgsUsage: "<build-id or build URL>",
		Action:    app.check,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "details",
				Usage: "Show per-failure error details",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "analyze",
		Usage:     "Walk builds back from a reference build and aggregate failure statistics",
		ArgsUsage: "<build-id or build URL>",
		Action:    app.analyze,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "Lookback window in days (default from config)",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "How many recurring failures to list",
				Value: 20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "logs",
		Usage:     "Download a build's artifact logs to a local directory",
		ArgsUsage: "<build-id or build URL>",
		Action:    app.logs,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to download into",
				Value:   "build-logs",
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

func (a *App) newFetchClient() *fetch.Client {
	return fetch.NewClient(a.logger, a.cfg.RequestTimeout(), a.cfg.RequestsPerSecond)
}

var buildIDSuffixRe = regexp.MustCompile(`-(\d+)/?$`)

// resolveBuild turns the command argument into a result page URL and a
// numeric build id. Both a bare id and a full browse URL are accepted.
func (a *App) resolveBuild(arg string) (string, int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", 0, fmt.Errorf("build id or URL required")
	}
	if id, err := strconv.Atoi(arg); err == nil {
		if id < 1 {
			return "", 0, fmt.Errorf("build id must be positive, got %d", id)
		}
		return a.cfg.BuildURL(id), id, nil
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		m := buildIDSuffixRe.FindStringSubmatch(arg)
		if m == nil {
			return "", 0, fmt.Errorf("cannot find a build id in %q", arg)
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return "", 0, fmt.Errorf("parsing build id from %q: %w", arg, err)
		}
		return strings.TrimRight(arg, "/"), id, nil
	}
	return "", 0, fmt.Errorf("expected a build id or URL, got %q", arg)
}

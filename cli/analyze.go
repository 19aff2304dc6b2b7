package cli

import (
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/cistat/cistat/analyze"
	"github.com/cistat/cistat/report"
	"github.com/cistat/cistat/walker"
)

func (a *App) analyze(ctx *cli.Context) error {
	_, id, err := a.resolveBuild(ctx.Args().First())
	if err != nil {
		return err
	}
	days := ctx.Int("days")
	if days < 1 {
		days = a.cfg.WindowDays
	}

	client := a.newFetchClient()
	parser := report.New(a.logger, client)
	w := walker.New(client, parser, a.cfg.BuildURL, a.cfg.MaxLookback, a.logger)

	// Ctrl-C stops the walk; whatever was collected so far still gets
	// aggregated and printed.
	walkCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	a.logger.Info().Int("build", id).Int("days", days).Msg("walking builds")
	reports, err := w.Walk(walkCtx, id, days)
	if err != nil {
		return err
	}
	if walkCtx.Err() != nil {
		a.logger.Warn().Int("collected", len(reports)).Msg("walk interrupted, showing partial results")
	}

	agg := analyze.New(a.cfg.NewMatcher(), a.logger)
	stats := agg.Aggregate(reports)
	renderStats(os.Stdout, stats, days, ctx.Int("top"))
	return nil
}

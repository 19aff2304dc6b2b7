package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cistat/cistat/report"
)

func (a *App) check(ctx *cli.Context) error {
	buildURL, id, err := a.resolveBuild(ctx.Args().First())
	if err != nil {
		return err
	}

	client := a.newFetchClient()
	parser := report.New(a.logger, client)

	a.logger.Info().Int("build", id).Str("url", buildURL).Msg("fetching build result page")
	text, err := client.Fetch(ctx.Context, buildURL)
	if err != nil {
		return fmt.Errorf("fetching build %d: %w", id, err)
	}

	r := parser.Parse(ctx.Context, text, buildURL)
	renderReport(os.Stdout, r, ctx.Bool("details"))
	return nil
}

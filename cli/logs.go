package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cistat/cistat/artifacts"
)

func (a *App) logs(ctx *cli.Context) error {
	buildURL, id, err := a.resolveBuild(ctx.Args().First())
	if err != nil {
		return err
	}
	outDir := ctx.String("output")

	d := artifacts.New(a.newFetchClient(), a.logger)
	a.logger.Info().Int("build", id).Str("dir", outDir).Msg("downloading build logs")

	n, err := d.DownloadBuildLogs(ctx.Context, buildURL, outDir)
	if err != nil {
		return fmt.Errorf("downloading logs for build %d: %w", id, err)
	}
	if n == 0 {
		a.logger.Warn().Int("build", id).Msg("no artifact logs found")
		return nil
	}
	fmt.Printf("Downloaded %d file(s) to %s\n", n, outDir)
	return nil
}

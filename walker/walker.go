// Package walker enumerates builds backwards from a reference build
// until a date cutoff, an id underflow, or an attempt bound stops it.
// Completion dates are only discovered after fetching, so the bound is
// what keeps the loop finite on pages with no usable date.
package walker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cistat/cistat/fetch"
	"github.com/cistat/cistat/model"
	"github.com/cistat/cistat/report"
)

// ErrNoReferenceDate is returned when the reference build's completion
// date cannot be established. It is the walk's only fatal condition.
var ErrNoReferenceDate = errors.New("cannot determine reference build completion date")

// Walker fetches and parses builds in strictly descending id order.
type Walker struct {
	fetcher     fetch.Fetcher
	parser      *report.Parser
	buildURL    func(id int) string
	maxLookback int
	logger      zerolog.Logger
}

// New creates a Walker. buildURL maps a build id to its page URL;
// maxLookback bounds how many ids are attempted.
func New(fetcher fetch.Fetcher, parser *report.Parser, buildURL func(id int) string, maxLookback int, logger zerolog.Logger) *Walker {
	return &Walker{
		fetcher:     fetcher,
		parser:      parser,
		buildURL:    buildURL,
		maxLookback: maxLookback,
		logger:      logger,
	}
}

// Walk collects reports for all builds completed within windowDays
// before the reference build's completion date, reference included.
// Per-id fetch failures are logged and skipped; documents without a
// parseable date are kept but excluded from cutoff decisions. On
// context cancellation the reports collected so far are returned so
// partial results can still be aggregated.
func (w *Walker) Walk(ctx context.Context, referenceBuild, windowDays int) ([]*model.BuildReport, error) {
	refURL := w.buildURL(referenceBuild)
	text, err := w.fetcher.Fetch(ctx, refURL)
	if err != nil {
		return nil, fmt.Errorf("fetching reference build #%d: %w", referenceBuild, err)
	}
	ref := w.parser.Parse(ctx, text, refURL)
	if ref.CompletedAt == nil {
		return nil, ErrNoReferenceDate
	}

	cutoff := ref.CompletedAt.AddDate(0, 0, -windowDays)
	w.logger.Info().
		Int("reference", referenceBuild).
		Time("from", cutoff).
		Time("to", *ref.CompletedAt).
		Msg("walking builds")

	var reports []*model.BuildReport
	for i := 0; i < w.maxLookback; i++ {
		id := referenceBuild - i
		if id < 1 {
			break
		}
		if ctx.Err() != nil {
			w.logger.Warn().Int("collected", len(reports)).Msg("walk interrupted, keeping partial results")
			break
		}

		var rep *model.BuildReport
		if i == 0 {
			rep = ref
		} else {
			url := w.buildURL(id)
			text, err := w.fetcher.Fetch(ctx, url)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.logger.Warn().Err(err).Int("build", id).Msg("skipping build")
				continue
			}
			rep = w.parser.Parse(ctx, text, url)
		}

		if rep.CompletedAt != nil && rep.CompletedAt.Before(cutoff) {
			w.logger.Info().
				Int("build", id).
				Time("completed", *rep.CompletedAt).
				Msg("reached cutoff date")
			break
		}

		reports = append(reports, rep)

		if (i+1)%10 == 0 {
			w.logger.Debug().Int("processed", i+1).Msg("walk progress")
		}
	}

	w.logger.Info().Int("builds", len(reports)).Msg("walk finished")
	return reports, nil
}

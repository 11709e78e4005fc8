package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/naka-gawa/org-stats/internal/config"
	"github.com/naka-gawa/org-stats/internal/domain"
	"github.com/naka-gawa/org-stats/internal/gateway"
)

// StatsService runs a whole collection: validate, fetch, aggregate.
type StatsService struct {
	fetcher *RepositoryFetcher
	logger  zerolog.Logger
}

// NewStatsService creates a new StatsService on top of a gateway.
func NewStatsService(fetcher gateway.Fetcher, logger zerolog.Logger) *StatsService {
	return &StatsService{
		fetcher: NewRepositoryFetcher(fetcher, logger),
		logger:  logger,
	}
}

// Collect produces the report described by cfg. Configuration problems are
// reported before any request is made, and a run in which no repository could
// be collected fails with a NoData error.
func (s *StatsService) Collect(ctx context.Context, cfg config.Config) (*domain.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	period, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}

	result, err := s.fetcher.Fetch(ctx, FetchRequest{
		Account:      strings.TrimSpace(cfg.Account),
		Repository:   strings.TrimSpace(cfg.Repository),
		IncludeForks: cfg.IncludeForks,
		Period:       period,
		ExcludeRepos: cfg.ExcludeRepos,
	})
	if err != nil {
		return nil, err
	}

	succeeded := 0
	for _, o := range result.Outcomes {
		if o.Succeeded() {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, domain.Newf(domain.ErrorCodeNoData,
			"no repository of %s could be collected (%d failed)", result.Account.Name, len(result.Outcomes))
	}

	agg := NewAggregator(AggregateOptions{
		TopN:        cfg.TopN,
		ExcludeBots: cfg.ExcludeBots,
		MinCommits:  cfg.MinCommits,
	}, s.logger)
	return agg.Aggregate(result.Account, period, result.Outcomes), nil
}

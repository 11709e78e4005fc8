package usecase

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/org-stats/internal/domain"
	"github.com/naka-gawa/org-stats/internal/gateway"
)

// MaxInFlight bounds the number of repositories fetched at the same time.
const MaxInFlight = 8

// FetchRequest describes which repositories to collect.
type FetchRequest struct {
	Account string
	// Repository restricts the run to one repository of Account. Resolution and
	// listing are skipped.
	Repository   string
	IncludeForks bool
	Period       domain.DateRange
	ExcludeRepos []string
}

// FetchResult is the resolved account plus one outcome per repository, ordered by name.
type FetchResult struct {
	Account  domain.Account
	Outcomes []domain.FetchOutcome
}

// RepositoryFetcher collects the raw per-repository data of an account.
type RepositoryFetcher struct {
	fetcher     gateway.Fetcher
	logger      zerolog.Logger
	maxInFlight int
}

// NewRepositoryFetcher creates a new RepositoryFetcher instance.
func NewRepositoryFetcher(fetcher gateway.Fetcher, logger zerolog.Logger) *RepositoryFetcher {
	return &RepositoryFetcher{
		fetcher:     fetcher,
		logger:      logger,
		maxInFlight: MaxInFlight,
	}
}

// Fetch resolves the account, lists its repositories and fetches every
// repository concurrently. A repository that fails becomes a Failure outcome and
// never cancels its siblings; only an exhausted rate limit or a cancelled
// context aborts the whole run.
func (f *RepositoryFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	account, repos, err := f.repositories(ctx, req)
	if err != nil {
		return nil, err
	}
	repos = withoutExcluded(repos, req.ExcludeRepos)
	f.logger.Info().Str("account", account.Name).Int("repositories", len(repos)).Msg("fetching repositories")

	outcomes := make([]domain.FetchOutcome, len(repos))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.maxInFlight)
	for i, repo := range repos {
		i, repo := i, repo // per-iteration copies; go directive is 1.21
		eg.Go(func() error {
			outcome, err := f.fetchOne(egCtx, account, repo, req.Period)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Repository.Name < outcomes[j].Repository.Name
	})
	return &FetchResult{Account: account, Outcomes: outcomes}, nil
}

func (f *RepositoryFetcher) repositories(ctx context.Context, req FetchRequest) (domain.Account, []domain.Repository, error) {
	if req.Repository != "" {
		account := domain.Account{Name: req.Account}
		return account, []domain.Repository{{Name: req.Repository, Owner: req.Account}}, nil
	}

	kind, err := f.fetcher.ResolveAccountKind(ctx, req.Account)
	if err != nil {
		return domain.Account{}, nil, err
	}
	account := domain.Account{Name: req.Account, Kind: kind}
	repos, err := f.fetcher.ListRepositories(ctx, account, req.IncludeForks)
	if err != nil {
		return domain.Account{}, nil, err
	}
	return account, repos, nil
}

// fetchOne returns an error only when the run must stop.
func (f *RepositoryFetcher) fetchOne(ctx context.Context, account domain.Account, repo domain.Repository, period domain.DateRange) (domain.FetchOutcome, error) {
	owner := repo.Owner
	if owner == "" {
		owner = account.Name
	}
	log := f.logger.With().Str("repo", repo.Name).Logger()

	fail := func(err error) (domain.FetchOutcome, error) {
		if isFatal(ctx, err) {
			return domain.FetchOutcome{}, err
		}
		reason := gateway.FailureReason(err)
		log.Warn().Err(err).Str("reason", reason).Msg("repository skipped")
		return domain.Failure(repo, &domain.RepositoryFetchError{Repository: repo.Name, Reason: reason, Err: err}), nil
	}

	contributors, err := f.fetcher.FetchContributorStats(ctx, owner, repo.Name)
	if err != nil {
		return fail(err)
	}
	languages, err := f.fetcher.FetchLanguages(ctx, owner, repo.Name)
	if err != nil {
		return fail(err)
	}

	log.Debug().Int("contributors", len(contributors)).Int("languages", len(languages)).Msg("repository fetched")
	return domain.Success(repo, domain.RepoStats{
		Contributors: filterWeeks(contributors, period),
		Languages:    languages,
	}), nil
}

func isFatal(ctx context.Context, err error) bool {
	if domain.IsCode(err, domain.ErrorCodeRateLimitExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx.Err() != nil
}

func withoutExcluded(repos []domain.Repository, excluded []string) []domain.Repository {
	if len(excluded) == 0 {
		return repos
	}
	kept := make([]domain.Repository, 0, len(repos))
	for _, r := range repos {
		if !slices.Contains(excluded, r.Name) {
			kept = append(kept, r)
		}
	}
	return kept
}

// filterWeeks keeps the weeks overlapping period and recomputes every total from
// them. Contributors left without activity are dropped.
func filterWeeks(stats []domain.CommitStat, period domain.DateRange) []domain.CommitStat {
	if period.IsZero() {
		return stats
	}
	out := make([]domain.CommitStat, 0, len(stats))
	for _, s := range stats {
		kept := domain.CommitStat{Username: s.Username}
		for _, w := range s.Weeks {
			if !period.ContainsWeek(w.Start) {
				continue
			}
			kept.Commits += w.Commits
			kept.Additions += w.Additions
			kept.Deletions += w.Deletions
			kept.Weeks = append(kept.Weeks, w)
		}
		if kept.Commits == 0 && kept.Additions == 0 && kept.Deletions == 0 {
			continue
		}
		out = append(out, kept)
	}
	return out
}

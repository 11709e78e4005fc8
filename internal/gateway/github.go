// Package gateway provides a gateway to the GitHub REST API,
// hiding the transport stack (auth, cache, rate limiting) behind the Fetcher interface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/org-stats/internal/cache"
	"github.com/naka-gawa/org-stats/internal/domain"
	"github.com/naka-gawa/org-stats/internal/ratelimit"
)

const (
	perPage = 100

	// DefaultStatsAttempts bounds how often a 202 from the stats endpoint is retried.
	DefaultStatsAttempts = 5
	// DefaultStatsInterval is the fixed wait between two stats attempts.
	DefaultStatsInterval = 2 * time.Second
	// DefaultTimeout bounds a single request. Rate limit waits are not included.
	DefaultTimeout = 30 * time.Second
)

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	ResolveAccountKind(ctx context.Context, name string) (domain.AccountKind, error)
	ListRepositories(ctx context.Context, account domain.Account, includeForks bool) ([]domain.Repository, error)
	FetchContributorStats(ctx context.Context, owner, repo string) ([]domain.CommitStat, error)
	FetchLanguages(ctx context.Context, owner, repo string) (domain.LanguageBytes, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	logger        zerolog.Logger
	statsAttempts int
	statsInterval time.Duration
	sleep         ratelimit.SleepFunc

	mu    sync.Mutex
	kinds map[string]domain.AccountKind
}

type options struct {
	baseURL       string
	store         *cache.Store
	limiter       *ratelimit.Limiter
	statsAttempts int
	statsInterval time.Duration
	sleep         ratelimit.SleepFunc
	timeout       time.Duration
	insecure      bool
}

// Option configures a GitHubGateway.
type Option func(*options)

// WithBaseURL points the client at a GitHub Enterprise Server or a test server.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithCache installs the response cache. Without it no request is ever cached.
func WithCache(s *cache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithLimiter shares a rate limiter. A fresh one is created otherwise.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithStatsRetry sets the 202 retry bound and interval.
func WithStatsRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.statsAttempts = attempts
		o.statsInterval = interval
	}
}

// WithSleep overrides the wait used between stats attempts.
func WithSleep(s ratelimit.SleepFunc) Option {
	return func(o *options) { o.sleep = s }
}

// WithTimeout bounds every request. Zero or less disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithInsecureTLS skips certificate verification.
func WithInsecureTLS() Option {
	return func(o *options) { o.insecure = true }
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, logger zerolog.Logger, opts ...Option) (*GitHubGateway, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.Newf(domain.ErrorCodeConfiguration, "a GitHub token is required")
	}

	o := options{
		statsAttempts: DefaultStatsAttempts,
		statsInterval: DefaultStatsInterval,
		sleep:         ratelimit.Sleep,
		timeout:       DefaultTimeout,
	}
	for _, apply := range opts {
		apply(&o)
	}
	if o.statsAttempts < 1 {
		o.statsAttempts = 1
	}
	if o.limiter == nil {
		o.limiter = ratelimit.New(ratelimit.WithLogger(logger))
	}

	base := baseTransport(o.insecure)
	if o.timeout > 0 {
		base = &timeoutTransport{next: base, timeout: o.timeout}
	}
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(base, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}

	var rt http.RoundTripper = &rateLimitTransport{next: rateLimitWaiter, limiter: o.limiter, log: logger}
	if o.store != nil {
		rt = &cachingTransport{next: rt, store: o.store, log: logger}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rt,
			Source: ts,
		},
	}

	restClient := github.NewClient(httpClient)
	if o.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, domain.Wrapf(err, domain.ErrorCodeConfiguration, "invalid API URL %q", o.baseURL)
		}
		restClient.BaseURL = base
	}

	return &GitHubGateway{
		restClient:    restClient,
		logger:        logger,
		statsAttempts: o.statsAttempts,
		statsInterval: o.statsInterval,
		sleep:         o.sleep,
		kinds:         make(map[string]domain.AccountKind),
	}, nil
}

// ResolveAccountKind probes the organization listing first and falls back to the
// user listing on 404. The answer is remembered for the lifetime of the gateway.
func (g *GitHubGateway) ResolveAccountKind(ctx context.Context, name string) (domain.AccountKind, error) {
	g.mu.Lock()
	kind, ok := g.kinds[name]
	g.mu.Unlock()
	if ok {
		return kind, nil
	}

	first := github.ListOptions{PerPage: perPage, Page: 1}

	_, _, err := g.restClient.Repositories.ListByOrg(ctx, name, &github.RepositoryListByOrgOptions{Type: "all", ListOptions: first})
	switch {
	case err == nil:
		kind = domain.AccountKindOrganization
	case StatusOf(err) == http.StatusNotFound:
		_, _, err = g.restClient.Repositories.ListByUser(ctx, name, &github.RepositoryListByUserOptions{Type: "owner", ListOptions: first})
		switch {
		case err == nil:
			kind = domain.AccountKindUser
		case StatusOf(err) == http.StatusNotFound:
			return domain.AccountKindUnknown, domain.Newf(domain.ErrorCodeAccountNotFound, "%q is neither an organization nor a user", name)
		default:
			return domain.AccountKindUnknown, fmt.Errorf("failed to probe user %s: %w", name, err)
		}
	default:
		return domain.AccountKindUnknown, fmt.Errorf("failed to probe organization %s: %w", name, err)
	}

	g.logger.Debug().Str("account", name).Str("kind", string(kind)).Msg("resolved account kind")
	g.mu.Lock()
	g.kinds[name] = kind
	g.mu.Unlock()
	return kind, nil
}

// ListRepositories pages through every repository of the account.
// Forks are dropped unless includeForks is set.
func (g *GitHubGateway) ListRepositories(ctx context.Context, account domain.Account, includeForks bool) ([]domain.Repository, error) {
	kind := account.Kind
	if kind == domain.AccountKindUnknown {
		var err error
		if kind, err = g.ResolveAccountKind(ctx, account.Name); err != nil {
			return nil, err
		}
	}

	listOpts := github.ListOptions{PerPage: perPage, Page: 1}
	var repos []domain.Repository
	for {
		var (
			page []*github.Repository
			resp *github.Response
			err  error
		)
		if kind == domain.AccountKindOrganization {
			page, resp, err = g.restClient.Repositories.ListByOrg(ctx, account.Name, &github.RepositoryListByOrgOptions{Type: "all", ListOptions: listOpts})
		} else {
			page, resp, err = g.restClient.Repositories.ListByUser(ctx, account.Name, &github.RepositoryListByUserOptions{Type: "owner", ListOptions: listOpts})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", account.Name, err)
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			if r.GetFork() && !includeForks {
				continue
			}
			repos = append(repos, toRepository(r, account.Name))
		}
		if resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
		g.logger.Debug().Str("account", account.Name).Int("page", listOpts.Page).Msg("fetching next page of repositories")
	}
	g.logger.Info().Str("account", account.Name).Int("repositories", len(repos)).Msg("listed repositories")
	return repos, nil
}

func toRepository(r *github.Repository, fallbackOwner string) domain.Repository {
	owner := r.GetOwner().GetLogin()
	if owner == "" {
		owner = fallbackOwner
	}
	return domain.Repository{
		Name:            r.GetName(),
		Owner:           owner,
		Fork:            r.GetFork(),
		Archived:        r.GetArchived(),
		DefaultBranch:   r.GetDefaultBranch(),
		PrimaryLanguage: r.GetLanguage(),
		Stars:           r.GetStargazersCount(),
		Forks:           r.GetForksCount(),
	}
}

// FetchContributorStats returns the weekly activity of every contributor.
// GitHub answers 202 while it computes the statistics; the call is retried at a
// fixed interval and gives up with domain.ErrStatsNotReady.
func (g *GitHubGateway) FetchContributorStats(ctx context.Context, owner, repo string) ([]domain.CommitStat, error) {
	for attempt := 1; ; attempt++ {
		stats, _, err := g.restClient.Repositories.ListContributorsStats(ctx, owner, repo)
		if err == nil {
			return toCommitStats(stats), nil
		}

		var accepted *github.AcceptedError
		if !errors.As(err, &accepted) {
			return nil, fmt.Errorf("failed to fetch contributor stats of %s/%s: %w", owner, repo, err)
		}
		if attempt >= g.statsAttempts {
			return nil, fmt.Errorf("%s/%s after %d attempts: %w", owner, repo, attempt, domain.ErrStatsNotReady)
		}
		g.logger.Debug().Str("repo", repo).Int("attempt", attempt).Msg("contributor stats are being computed, retrying")
		if err := g.sleep(ctx, g.statsInterval); err != nil {
			return nil, err
		}
	}
}

func toCommitStats(stats []*github.ContributorStats) []domain.CommitStat {
	out := make([]domain.CommitStat, 0, len(stats))
	for _, s := range stats {
		login := s.GetAuthor().GetLogin()
		if login == "" {
			// deleted accounts come back without an author
			continue
		}
		cs := domain.CommitStat{Username: login, Commits: s.GetTotal()}
		for _, w := range s.Weeks {
			ws := domain.WeekStat{
				Start:     w.GetWeek().Time.UTC(),
				Commits:   w.GetCommits(),
				Additions: w.GetAdditions(),
				Deletions: w.GetDeletions(),
			}
			cs.Additions += ws.Additions
			cs.Deletions += ws.Deletions
			cs.Weeks = append(cs.Weeks, ws)
		}
		out = append(out, cs)
	}
	return out
}

// FetchLanguages returns the byte count per language of a repository.
func (g *GitHubGateway) FetchLanguages(ctx context.Context, owner, repo string) (domain.LanguageBytes, error) {
	langs, _, err := g.restClient.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch languages of %s/%s: %w", owner, repo, err)
	}
	out := make(domain.LanguageBytes, len(langs))
	for name, n := range langs {
		out[name] = int64(n)
	}
	return out, nil
}

// StatusOf returns the HTTP status carried by a GitHub API error, or 0.
func StatusOf(err error) int {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	var rl *github.RateLimitError
	if errors.As(err, &rl) && rl.Response != nil {
		return rl.Response.StatusCode
	}
	var ab *github.AbuseRateLimitError
	if errors.As(err, &ab) && ab.Response != nil {
		return ab.Response.StatusCode
	}
	return 0
}

// FailureReason renders err as the short reason shown in report warnings.
func FailureReason(err error) string {
	if errors.Is(err, domain.ErrStatsNotReady) {
		return domain.ErrStatsNotReady.Error()
	}
	if errors.Is(err, ErrRequestTimeout) {
		return "timeout"
	}
	if code := StatusOf(err); code != 0 {
		return statusText(code)
	}
	return err.Error()
}

package usecase

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/org-stats/internal/config"
	"github.com/naka-gawa/org-stats/internal/domain"
)

func serviceConfig() config.Config {
	cfg := config.Default()
	cfg.Account = "acme"
	cfg.Token = "token"
	return cfg
}

func TestStatsService_Collect_EndToEnd(t *testing.T) {
	ctx := context.Background()
	m := new(mockFetcher)
	m.On("ResolveAccountKind", ctx, "acme").Return(domain.AccountKindOrganization, nil)
	m.On("ListRepositories", ctx, acme, false).
		Return([]domain.Repository{repo("empty-repo"), repo("failing-repo"), repo("active-repo")}, nil)

	m.On("FetchContributorStats", mock.Anything, "acme", "empty-repo").Return([]domain.CommitStat{}, nil)
	m.On("FetchLanguages", mock.Anything, "acme", "empty-repo").Return(domain.LanguageBytes{}, nil)
	m.On("FetchContributorStats", mock.Anything, "acme", "failing-repo").Return(nil, httpError(http.StatusNotFound))
	m.On("FetchContributorStats", mock.Anything, "acme", "active-repo").Return([]domain.CommitStat{
		{Username: "alice", Commits: 10, Additions: 100},
		{Username: "bob", Commits: 5, Additions: 50},
	}, nil)
	m.On("FetchLanguages", mock.Anything, "acme", "active-repo").Return(domain.LanguageBytes{"Go": 1000}, nil)

	cfg := serviceConfig()
	cfg.TopN = 1
	report, err := NewStatsService(m, zerolog.Nop()).Collect(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Repositories)
	assert.Equal(t, 15, report.Summary.Commits)
	assert.Equal(t, 150, report.Summary.Additions)
	assert.Equal(t, []domain.ContributorRank{{Username: "alice", Commits: 10, Additions: 100}}, report.Contributors)
	assert.Equal(t, []domain.Warning{{Repository: "failing-repo", Reason: "404"}}, report.Warnings)
	assert.Equal(t, []domain.LanguageShare{{Language: "Go", Bytes: 1000, Percentage: 100}}, report.Languages)
	m.AssertExpectations(t)
}

func TestStatsService_Collect_InvalidConfigMakesNoCalls(t *testing.T) {
	m := new(mockFetcher)
	cfg := serviceConfig()
	cfg.Token = ""

	_, err := NewStatsService(m, zerolog.Nop()).Collect(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrorCodeConfiguration))
	m.AssertNotCalled(t, "ResolveAccountKind", mock.Anything, mock.Anything)
}

func TestStatsService_Collect_NoData(t *testing.T) {
	testCases := []struct {
		name  string
		repos []domain.Repository
	}{
		{name: "no repositories", repos: []domain.Repository{}},
		{name: "every repository failed", repos: []domain.Repository{repo("a"), repo("b")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			m := new(mockFetcher)
			m.On("ResolveAccountKind", ctx, "acme").Return(domain.AccountKindOrganization, nil)
			m.On("ListRepositories", ctx, acme, false).Return(tc.repos, nil)
			m.On("FetchContributorStats", mock.Anything, "acme", mock.Anything).Return(nil, httpError(http.StatusForbidden))

			_, err := NewStatsService(m, zerolog.Nop()).Collect(ctx, serviceConfig())
			require.Error(t, err)
			assert.True(t, domain.IsCode(err, domain.ErrorCodeNoData))
		})
	}
}

func TestStatsService_Collect_PassesFiltersThrough(t *testing.T) {
	ctx := context.Background()
	m := new(mockFetcher)
	m.On("ResolveAccountKind", ctx, "acme").Return(domain.AccountKindOrganization, nil)
	m.On("ListRepositories", ctx, acme, true).Return([]domain.Repository{repo("keep"), repo("drop")}, nil)
	m.On("FetchContributorStats", mock.Anything, "acme", "keep").Return([]domain.CommitStat{
		{Username: "github-actions[bot]", Commits: 9},
		{Username: "alice", Commits: 1},
	}, nil)
	m.On("FetchLanguages", mock.Anything, "acme", "keep").Return(domain.LanguageBytes{}, nil)

	cfg := serviceConfig()
	cfg.IncludeForks = true
	cfg.ExcludeRepos = []string{"drop"}
	cfg.ExcludeBots = true

	report, err := NewStatsService(m, zerolog.Nop()).Collect(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Repositories)
	assert.Equal(t, []domain.ContributorRank{{Username: "alice", Commits: 1}}, report.Contributors)
	m.AssertNotCalled(t, "FetchContributorStats", mock.Anything, "acme", "drop")
}

func TestStatsService_Collect_SingleRepository(t *testing.T) {
	ctx := context.Background()
	m := new(mockFetcher)
	m.On("FetchContributorStats", mock.Anything, "acme", "api").Return([]domain.CommitStat{{Username: "alice", Commits: 4}}, nil)
	m.On("FetchLanguages", mock.Anything, "acme", "api").Return(domain.LanguageBytes{"Go": 1}, nil)

	cfg := serviceConfig()
	cfg.Repository = " api "

	report, err := NewStatsService(m, zerolog.Nop()).Collect(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Repositories)
	assert.Equal(t, 4, report.Summary.Commits)
	m.AssertNotCalled(t, "ListRepositories", mock.Anything, mock.Anything, mock.Anything)
}

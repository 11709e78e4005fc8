// Package usecase contains the business logic of the application.
package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/org-stats/internal/domain"
)

const (
	// DefaultTopN is the number of contributors kept when no limit is given.
	DefaultTopN = 10
	// MaxLanguages is the number of languages listed before the rest is folded into Other.
	MaxLanguages = 15
)

var knownBots = map[string]struct{}{
	"dependabot":         {},
	"dependabot-preview": {},
	"renovate":           {},
	"renovate-bot":       {},
	"github-actions":     {},
	"codecov":            {},
	"snyk-bot":           {},
	"greenkeeper":        {},
	"allcontributors":    {},
	"imgbot":             {},
	"stale":              {},
	"mergify":            {},
	"sonarcloud":         {},
}

// IsBot reports whether username looks like an automation account.
func IsBot(username string) bool {
	lower := strings.ToLower(username)
	if strings.HasSuffix(lower, "[bot]") {
		return true
	}
	_, ok := knownBots[lower]
	return ok
}

// AggregateOptions tunes the contributor ranking.
type AggregateOptions struct {
	TopN        int
	ExcludeBots bool
	MinCommits  int
}

// Aggregator turns fetch outcomes into a Report. It performs no I/O and the
// result does not depend on the order of the outcomes.
type Aggregator struct {
	opts   AggregateOptions
	logger zerolog.Logger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(opts AggregateOptions, logger zerolog.Logger) *Aggregator {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &Aggregator{opts: opts, logger: logger}
}

// Aggregate builds the report of account over period.
func (a *Aggregator) Aggregate(account domain.Account, period domain.DateRange, outcomes []domain.FetchOutcome) *domain.Report {
	report := &domain.Report{
		Account:      account,
		Period:       period,
		Contributors: []domain.ContributorRank{},
		Languages:    []domain.LanguageShare{},
		Trends:       []domain.ContributorTrend{},
		Repositories: []domain.RepoSummary{},
		Warnings:     []domain.Warning{},
	}

	merged := make(map[string]*domain.ContributorRank)
	activeWeeks := make(map[string]map[time.Time]struct{})
	languages := make(domain.LanguageBytes)

	for _, o := range outcomes {
		if !o.Succeeded() {
			report.Warnings = append(report.Warnings, domain.Warning{Repository: o.Repository.Name, Reason: reasonOf(o)})
			continue
		}

		repo := o.Repository
		summary := domain.RepoSummary{
			Name:            repo.Name,
			PrimaryLanguage: repo.PrimaryLanguage,
			Stars:           repo.Stars,
			Forks:           repo.Forks,
			Archived:        repo.Archived,
			Contributors:    len(o.Stats.Contributors),
		}
		report.Summary.Repositories++
		report.Summary.Stars += repo.Stars
		report.Summary.Forks += repo.Forks
		if repo.Archived {
			report.Summary.Archived++
		}

		for _, c := range o.Stats.Contributors {
			summary.Commits += c.Commits
			summary.Additions += c.Additions
			summary.Deletions += c.Deletions

			m, ok := merged[c.Username]
			if !ok {
				m = &domain.ContributorRank{Username: c.Username}
				merged[c.Username] = m
			}
			m.Commits += c.Commits
			m.Additions += c.Additions
			m.Deletions += c.Deletions

			for _, w := range c.Weeks {
				if !w.Active() {
					continue
				}
				if activeWeeks[c.Username] == nil {
					activeWeeks[c.Username] = make(map[time.Time]struct{})
				}
				activeWeeks[c.Username][w.Start.UTC()] = struct{}{}
			}
		}
		report.Summary.Commits += summary.Commits
		report.Summary.Additions += summary.Additions
		report.Summary.Deletions += summary.Deletions

		for lang, n := range o.Stats.Languages {
			languages[lang] += n
		}
		report.Repositories = append(report.Repositories, summary)
	}

	ranked := a.rank(merged)
	report.Summary.Contributors = len(ranked)
	report.Summary.MeanCommits, report.Summary.MedianCommits = commitCentres(ranked)
	report.Trends = a.trends(ranked, activeWeeks)
	if len(ranked) > a.opts.TopN {
		ranked = ranked[:a.opts.TopN]
	}
	report.Contributors = ranked
	report.Languages = languageShares(languages)

	sort.Slice(report.Repositories, func(i, j int) bool {
		return report.Repositories[i].Name < report.Repositories[j].Name
	})
	sort.Slice(report.Warnings, func(i, j int) bool {
		return report.Warnings[i].Repository < report.Warnings[j].Repository
	})

	a.logger.Debug().
		Int("repositories", report.Summary.Repositories).
		Int("contributors", report.Summary.Contributors).
		Int("warnings", len(report.Warnings)).
		Msg("aggregation complete")
	return report
}

func reasonOf(o domain.FetchOutcome) string {
	if o.Err != nil && o.Err.Reason != "" {
		return o.Err.Reason
	}
	if o.Err != nil && o.Err.Err != nil {
		return o.Err.Err.Error()
	}
	return "no data"
}

// rank applies the contributor filters and sorts by commits, then additions,
// then username.
func (a *Aggregator) rank(merged map[string]*domain.ContributorRank) []domain.ContributorRank {
	out := make([]domain.ContributorRank, 0, len(merged))
	for _, c := range merged {
		if a.opts.ExcludeBots && IsBot(c.Username) {
			continue
		}
		if a.opts.MinCommits > 0 && c.Commits < a.opts.MinCommits {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}
		if out[i].Additions != out[j].Additions {
			return out[i].Additions > out[j].Additions
		}
		return out[i].Username < out[j].Username
	})
	return out
}

func commitCentres(ranked []domain.ContributorRank) (mean, median float64) {
	if len(ranked) == 0 {
		return 0, 0
	}
	data := make(stats.Float64Data, len(ranked))
	for i, c := range ranked {
		data[i] = float64(c.Commits)
	}
	mean, _ = stats.Mean(data)
	median, _ = stats.Median(data)
	return mean, median
}

// trends describes when each ranked contributor was active, using the union of
// their active weeks over every repository. The list follows the ranking limit.
func (a *Aggregator) trends(ranked []domain.ContributorRank, activeWeeks map[string]map[time.Time]struct{}) []domain.ContributorTrend {
	out := []domain.ContributorTrend{}
	for _, c := range ranked {
		weeks := activeWeeks[c.Username]
		if len(weeks) == 0 {
			continue
		}
		var first, last time.Time
		for w := range weeks {
			if first.IsZero() || w.Before(first) {
				first = w
			}
			if w.After(last) {
				last = w
			}
		}
		span := int(last.Sub(first).Hours()/24)/7 + 1
		out = append(out, domain.ContributorTrend{
			Username:        c.Username,
			FirstActiveWeek: first,
			LastActiveWeek:  last,
			ActiveWeeks:     len(weeks),
			SpanWeeks:       span,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActiveWeeks != out[j].ActiveWeeks {
			return out[i].ActiveWeeks > out[j].ActiveWeeks
		}
		return out[i].Username < out[j].Username
	})
	if len(out) > a.opts.TopN {
		out = out[:a.opts.TopN]
	}
	return out
}

// languageShares converts byte counts into percentages of the total. Only the
// first MaxLanguages entries are listed; when more exist, Other carries whatever
// is left of 100 so the listed percentages always add up to it.
func languageShares(languages domain.LanguageBytes) []domain.LanguageShare {
	var total int64
	for _, n := range languages {
		total += n
	}
	if total <= 0 {
		return []domain.LanguageShare{}
	}

	all := make([]domain.LanguageShare, 0, len(languages))
	for name, n := range languages {
		all = append(all, domain.LanguageShare{
			Language:   name,
			Bytes:      n,
			Percentage: float64(n) / float64(total) * 100,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Bytes != all[j].Bytes {
			return all[i].Bytes > all[j].Bytes
		}
		return all[i].Language < all[j].Language
	})
	if len(all) <= MaxLanguages {
		// the last entry absorbs float error so the shares add up to exactly 100
		var head float64
		for _, s := range all[:len(all)-1] {
			head += s.Percentage
		}
		all[len(all)-1].Percentage = max(100-head, 0)
		return all
	}

	shown := all[:MaxLanguages]
	var shownPct float64
	var restBytes int64
	for _, s := range shown {
		shownPct += s.Percentage
	}
	for _, s := range all[MaxLanguages:] {
		restBytes += s.Bytes
	}
	other := 100 - shownPct
	if other < 0 {
		other = 0
	}
	return append(shown, domain.LanguageShare{Language: domain.OtherLanguage, Bytes: restBytes, Percentage: other})
}

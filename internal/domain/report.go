package domain

import "time"

// OtherLanguage is the bucket name for languages outside the shown top entries.
const OtherLanguage = "Other"

// DateRange bounds the weeks that are counted. A nil bound is open.
type DateRange struct {
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Since == nil && r.Until == nil
}

// ContainsWeek reports whether a week starting at start overlaps the range.
// A week is excluded only when it ends at or before Since, or starts after Until.
func (r DateRange) ContainsWeek(start time.Time) bool {
	if r.Since != nil && !start.Add(7*24*time.Hour).After(*r.Since) {
		return false
	}
	if r.Until != nil && start.After(*r.Until) {
		return false
	}
	return true
}

// Warning records a repository that could not be collected.
type Warning struct {
	Repository string `json:"repository"`
	Reason     string `json:"reason"`
}

// Summary holds the org-wide totals.
type Summary struct {
	Repositories  int     `json:"repositories"`
	Commits       int     `json:"commits"`
	Additions     int     `json:"additions"`
	Deletions     int     `json:"deletions"`
	Stars         int     `json:"stars"`
	Forks         int     `json:"forks"`
	Archived      int     `json:"archived"`
	Contributors  int     `json:"contributors"`
	MeanCommits   float64 `json:"mean_commits_per_contributor"`
	MedianCommits float64 `json:"median_commits_per_contributor"`
}

// ContributorRank is a contributor's activity merged across repositories.
type ContributorRank struct {
	Username  string `json:"username"`
	Commits   int    `json:"commits"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// LanguageShare is one row of the language distribution.
type LanguageShare struct {
	Language   string  `json:"language"`
	Bytes      int64   `json:"bytes"`
	Percentage float64 `json:"percentage"`
}

// ContributorTrend describes when a contributor was active.
type ContributorTrend struct {
	Username        string    `json:"username"`
	FirstActiveWeek time.Time `json:"first_active_week"`
	LastActiveWeek  time.Time `json:"last_active_week"`
	ActiveWeeks     int       `json:"active_weeks"`
	SpanWeeks       int       `json:"span_weeks"`
}

// RepoSummary is the per-repository line of the report.
type RepoSummary struct {
	Name            string `json:"name"`
	Commits         int    `json:"commits"`
	Additions       int    `json:"additions"`
	Deletions       int    `json:"deletions"`
	Contributors    int    `json:"contributors"`
	PrimaryLanguage string `json:"primary_language,omitempty"`
	Stars           int    `json:"stars"`
	Forks           int    `json:"forks"`
	Archived        bool   `json:"archived"`
}

// Report is the final result of a run. It is built once and never mutated.
type Report struct {
	Account      Account            `json:"account"`
	Period       DateRange          `json:"period"`
	Summary      Summary            `json:"summary"`
	Contributors []ContributorRank  `json:"contributors"`
	Languages    []LanguageShare    `json:"languages"`
	Trends       []ContributorTrend `json:"contributor_trends"`
	Repositories []RepoSummary      `json:"repositories"`
	Warnings     []Warning          `json:"warnings"`
}

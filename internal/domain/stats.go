// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// AccountKind tells whether an account is an organization or a user.
type AccountKind string

const (
	// AccountKindUnknown is the zero value before resolution.
	AccountKindUnknown AccountKind = ""
	// AccountKindOrganization marks a GitHub organization.
	AccountKindOrganization AccountKind = "organization"
	// AccountKindUser marks a GitHub user.
	AccountKindUser AccountKind = "user"
)

// Account is the GitHub organization or user being analyzed.
type Account struct {
	Name string      `json:"name"`
	Kind AccountKind `json:"kind"`
}

// Repository holds the listing metadata of a single repository.
type Repository struct {
	Name            string `json:"name"`
	Owner           string `json:"owner"`
	Fork            bool   `json:"fork"`
	Archived        bool   `json:"archived"`
	DefaultBranch   string `json:"default_branch"`
	PrimaryLanguage string `json:"primary_language,omitempty"`
	Stars           int    `json:"stars"`
	Forks           int    `json:"forks"`
}

// WeekStat is one week of a contributor's activity in a repository.
type WeekStat struct {
	Start     time.Time `json:"start"`
	Commits   int       `json:"commits"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
}

// Active reports whether anything happened during the week.
func (w WeekStat) Active() bool {
	return w.Commits > 0 || w.Additions > 0 || w.Deletions > 0
}

// CommitStat is the activity of one contributor in one repository.
type CommitStat struct {
	Username  string     `json:"username"`
	Commits   int        `json:"commits"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Weeks     []WeekStat `json:"weeks,omitempty"`
}

// LanguageBytes maps a language name to its byte count.
type LanguageBytes map[string]int64

// RepoStats is everything fetched for a single repository.
type RepoStats struct {
	Contributors []CommitStat  `json:"contributors"`
	Languages    LanguageBytes `json:"languages"`
}

// FetchOutcome is the tagged result of fetching one repository.
// Exactly one of Stats and Err is set.
type FetchOutcome struct {
	Repository Repository
	Stats      *RepoStats
	Err        *RepositoryFetchError
}

// Success builds a successful outcome.
func Success(repo Repository, stats RepoStats) FetchOutcome {
	return FetchOutcome{Repository: repo, Stats: &stats}
}

// Failure builds a failed outcome.
func Failure(repo Repository, err *RepositoryFetchError) FetchOutcome {
	return FetchOutcome{Repository: repo, Err: err}
}

// Succeeded reports whether the outcome carries stats.
func (o FetchOutcome) Succeeded() bool {
	return o.Err == nil && o.Stats != nil
}

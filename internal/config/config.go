// Package config holds the run configuration and its validation.
package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/naka-gawa/org-stats/internal/domain"
)

const (
	// DefaultTopN is the number of contributors shown when none is given.
	DefaultTopN = 10

	dateLayout = "2006-01-02"
)

// Output formats understood by the renderers.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Formats lists every supported output format.
var Formats = []string{FormatTable, FormatJSON, FormatCSV}

// Contributor orderings a renderer can apply on top of the ranking.
const (
	SortCommits   = "commits"
	SortAdditions = "additions"
	SortDeletions = "deletions"
	SortLines     = "lines"
)

// SortKeys lists every supported sort key.
var SortKeys = []string{SortCommits, SortAdditions, SortDeletions, SortLines}

// Config is everything a single run needs.
type Config struct {
	Account      string
	Repository   string
	Token        string
	TopN         int
	Since        string
	Until        string
	IncludeForks bool
	NoCache      bool
	ExcludeRepos []string
	ExcludeBots  bool
	MinCommits   int
	APIURL       string
	Format       string
	SortBy       string
	Output       string
	Insecure     bool
	Verbose      bool
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{TopN: DefaultTopN, Format: FormatTable, SortBy: SortCommits}
}

// TokenFromEnv reads GITHUB_TOKEN, then GH_TOKEN.
func TokenFromEnv(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports the first configuration problem, before any network call is made.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Account) == "" {
		return domain.Newf(domain.ErrorCodeConfiguration, "an organization or user name is required")
	}
	if strings.TrimSpace(c.Token) == "" {
		return domain.Newf(domain.ErrorCodeConfiguration, "a GitHub token is required (set --token, GITHUB_TOKEN or GH_TOKEN)")
	}
	if c.TopN <= 0 {
		return domain.Newf(domain.ErrorCodeConfiguration, "top must be positive, got %d", c.TopN)
	}
	if c.MinCommits < 0 {
		return domain.Newf(domain.ErrorCodeConfiguration, "min-commits must not be negative, got %d", c.MinCommits)
	}
	if c.Format != "" && !slices.Contains(Formats, strings.ToLower(c.Format)) {
		return domain.Newf(domain.ErrorCodeConfiguration, "unknown format %q (want one of %s)", c.Format, strings.Join(Formats, ", "))
	}
	if c.SortBy != "" && !slices.Contains(SortKeys, strings.ToLower(c.SortBy)) {
		return domain.Newf(domain.ErrorCodeConfiguration, "unknown sort key %q (want one of %s)", c.SortBy, strings.Join(SortKeys, ", "))
	}
	if strings.Contains(c.Repository, "/") {
		return domain.Newf(domain.ErrorCodeConfiguration, "repo %q must be a bare name, the owner comes from the account", c.Repository)
	}
	_, err := c.DateRange()
	return err
}

// DateRange parses Since and Until. Since is the start of its day and Until the
// last second of its day, both in UTC.
func (c Config) DateRange() (domain.DateRange, error) {
	var r domain.DateRange
	if c.Since != "" {
		t, err := time.Parse(dateLayout, c.Since)
		if err != nil {
			return r, domain.Wrapf(err, domain.ErrorCodeConfiguration, "invalid since date %q, use YYYY-MM-DD", c.Since)
		}
		t = t.UTC()
		r.Since = &t
	}
	if c.Until != "" {
		t, err := time.Parse(dateLayout, c.Until)
		if err != nil {
			return r, domain.Wrapf(err, domain.ErrorCodeConfiguration, "invalid until date %q, use YYYY-MM-DD", c.Until)
		}
		t = t.UTC().Add(24*time.Hour - time.Second)
		r.Until = &t
	}
	if r.Since != nil && r.Until != nil && r.Since.After(*r.Until) {
		return domain.DateRange{}, domain.Newf(domain.ErrorCodeConfiguration, "since %s is after until %s", c.Since, c.Until)
	}
	return r, nil
}

// Package output renders a finished report for humans or machines.
package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/naka-gawa/org-stats/internal/config"
	"github.com/naka-gawa/org-stats/internal/domain"
)

// Renderer writes a report to w.
type Renderer interface {
	Render(w io.Writer, report *domain.Report) error
}

// Option adjusts the renderer returned by New.
type Option func(*settings)

type settings struct {
	sortBy string
}

// WithSortBy reorders the ranked contributors by key before rendering.
// The ranking itself, and so who made the top-N, is left alone.
func WithSortBy(key string) Option {
	return func(s *settings) { s.sortBy = strings.ToLower(key) }
}

// New returns the renderer for format. An empty format means table.
func New(format string, opts ...Option) (Renderer, error) {
	var s settings
	for _, apply := range opts {
		apply(&s)
	}

	var r Renderer
	switch strings.ToLower(format) {
	case "", config.FormatTable:
		r = TableRenderer{}
	case config.FormatJSON:
		r = JSONRenderer{}
	case config.FormatCSV:
		r = CSVRenderer{}
	default:
		return nil, domain.Newf(domain.ErrorCodeConfiguration, "unknown format %q", format)
	}

	switch {
	case s.sortBy == "" || s.sortBy == config.SortCommits:
		return r, nil
	case slices.Contains(config.SortKeys, s.sortBy):
		return sortedRenderer{next: r, by: s.sortBy}, nil
	default:
		return nil, domain.Newf(domain.ErrorCodeConfiguration, "unknown sort key %q", s.sortBy)
	}
}

// sortedRenderer hands next a copy of the report with its contributors reordered.
type sortedRenderer struct {
	next Renderer
	by   string
}

func (s sortedRenderer) Render(w io.Writer, r *domain.Report) error {
	view := *r
	view.Contributors = sortContributors(r.Contributors, s.by)
	return s.next.Render(w, &view)
}

// sortContributors orders by key descending. Ties keep their ranked order.
func sortContributors(cs []domain.ContributorRank, by string) []domain.ContributorRank {
	key := func(c domain.ContributorRank) int {
		switch by {
		case config.SortAdditions:
			return c.Additions
		case config.SortDeletions:
			return c.Deletions
		case config.SortLines:
			return c.Additions + c.Deletions
		default:
			return c.Commits
		}
	}
	out := slices.Clone(cs)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	return out
}

// WriteFile renders report into path, or to stdout when path is empty.
func WriteFile(path string, r Renderer, report *domain.Report) (err error) {
	if path == "" {
		return r.Render(os.Stdout, report)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return r.Render(f, report)
}

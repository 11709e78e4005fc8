package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/pterm/pterm"

	"github.com/naka-gawa/org-stats/internal/domain"
)

const barWidth = 20

// TableRenderer prints the report as terminal tables.
type TableRenderer struct{}

// Render implements Renderer.
func (TableRenderer) Render(w io.Writer, r *domain.Report) error {
	sections := []struct {
		title string
		data  pterm.TableData
	}{
		{"Summary", summaryRows(r)},
		{"Top contributors", contributorRows(r.Contributors)},
		{"Languages", languageRows(r.Languages)},
		{"Repositories", repositoryRows(r.Repositories)},
		{"Activity", trendRows(r.Trends)},
	}

	fmt.Fprintln(w, pterm.DefaultHeader.Sprint(title(r)))
	for _, s := range sections {
		if len(s.data) <= 1 {
			continue
		}
		out, err := pterm.DefaultTable.WithHasHeader().WithData(s.data).Srender()
		if err != nil {
			return fmt.Errorf("failed to render %s table: %w", strings.ToLower(s.title), err)
		}
		fmt.Fprint(w, pterm.DefaultSection.Sprint(s.title))
		fmt.Fprintln(w, out)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprint(w, pterm.DefaultSection.Sprint("Skipped repositories"))
		for _, warn := range r.Warnings {
			fmt.Fprintln(w, pterm.Warning.Sprintf("%s: %s", warn.Repository, warn.Reason))
		}
	}
	return nil
}

func title(r *domain.Report) string {
	t := "GitHub stats for " + r.Account.Name
	if r.Account.Kind != domain.AccountKindUnknown {
		t += " (" + string(r.Account.Kind) + ")"
	}
	if r.Period.Since != nil || r.Period.Until != nil {
		since, until := "*", "*"
		if r.Period.Since != nil {
			since = r.Period.Since.Format("2006-01-02")
		}
		if r.Period.Until != nil {
			until = r.Period.Until.Format("2006-01-02")
		}
		t += fmt.Sprintf(" from %s to %s", since, until)
	}
	return t
}

func summaryRows(r *domain.Report) pterm.TableData {
	s := r.Summary
	return pterm.TableData{
		{"Metric", "Value"},
		{"Repositories", formatInt(s.Repositories)},
		{"Commits", formatInt(s.Commits)},
		{"Additions", formatInt(s.Additions)},
		{"Deletions", formatInt(s.Deletions)},
		{"Contributors", formatInt(s.Contributors)},
		{"Mean commits per contributor", formatFloat(s.MeanCommits)},
		{"Median commits per contributor", formatFloat(s.MedianCommits)},
		{"Stars", formatInt(s.Stars)},
		{"Forks", formatInt(s.Forks)},
		{"Archived repositories", formatInt(s.Archived)},
	}
}

func contributorRows(cs []domain.ContributorRank) pterm.TableData {
	data := pterm.TableData{{"#", "Username", "Commits", "Additions", "Deletions"}}
	for i, c := range cs {
		data = append(data, []string{
			strconv.Itoa(i + 1), c.Username, formatInt(c.Commits), "+" + formatInt(c.Additions), "-" + formatInt(c.Deletions),
		})
	}
	return data
}

func languageRows(ls []domain.LanguageShare) pterm.TableData {
	data := pterm.TableData{{"Language", "Share", ""}}
	for _, l := range ls {
		data = append(data, []string{l.Language, formatFloat(l.Percentage) + "%", bar(l.Percentage)})
	}
	return data
}

func repositoryRows(rs []domain.RepoSummary) pterm.TableData {
	data := pterm.TableData{{"Repository", "Language", "Commits", "Contributors", "Stars", "Forks", "Archived"}}
	for _, r := range rs {
		archived := ""
		if r.Archived {
			archived = "yes"
		}
		data = append(data, []string{
			r.Name, r.PrimaryLanguage, formatInt(r.Commits), formatInt(r.Contributors), formatInt(r.Stars), formatInt(r.Forks), archived,
		})
	}
	return data
}

func trendRows(ts []domain.ContributorTrend) pterm.TableData {
	data := pterm.TableData{{"Username", "First week", "Last week", "Active weeks", "Span"}}
	for _, t := range ts {
		data = append(data, []string{
			t.Username,
			t.FirstActiveWeek.Format("2006-01-02"),
			t.LastActiveWeek.Format("2006-01-02"),
			formatInt(t.ActiveWeeks),
			formatInt(t.SpanWeeks) + "w",
		})
	}
	return data
}

func bar(pct float64) string {
	filled, _ := stats.Round(pct/100*barWidth, 0)
	n := int(filled)
	if n < 0 {
		n = 0
	}
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

// formatFloat rounds to one decimal place for display.
func formatFloat(f float64) string {
	rounded, err := stats.Round(f, 1)
	if err != nil {
		rounded = f
	}
	return strconv.FormatFloat(rounded, 'f', 1, 64)
}

// formatInt groups thousands with commas.
func formatInt(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

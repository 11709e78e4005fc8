package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/naka-gawa/org-stats/internal/domain"
)

// CSVRenderer writes one row per ranked contributor.
type CSVRenderer struct{}

// Render implements Renderer.
func (CSVRenderer) Render(w io.Writer, r *domain.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"username", "commits", "additions", "deletions"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, c := range r.Contributors {
		row := []string{c.Username, strconv.Itoa(c.Commits), strconv.Itoa(c.Additions), strconv.Itoa(c.Deletions)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

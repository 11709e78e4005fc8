package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/naka-gawa/org-stats/internal/domain"
)

// JSONRenderer writes the whole report as indented JSON.
type JSONRenderer struct{}

// Render implements Renderer.
func (JSONRenderer) Render(w io.Writer, r *domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return nil
}

package reconcile

import (
	"errors"
	"fmt"

	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/workbook"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// Write emits one sheet per group into a new workbook at path. A group
// whose sheet fails is logged and skipped; the file is saved when at least
// one sheet was written.
func (e *Engine) Write(path string, groups []domain.GroupStatement) (int, error) {
	w := workbook.NewWriter()
	defer w.Close()

	written := 0
	for _, g := range groups {
		if err := w.WriteSheet(Layout(g)); err != nil {
			e.logger.Error("Error creating stock statement for HSN", "hsn", g.Group, "error", err)
			continue
		}
		written++
		e.logger.Debug("Stock statement sheet written", "hsn", g.Group, "rows", len(g.Rows))
	}
	if written == 0 {
		return 0, errors.New("no statement sheet could be written")
	}
	if err := w.SaveAs(path); err != nil {
		return written, fmt.Errorf("failed to save stock statement %s: %w", path, err)
	}
	return written, nil
}

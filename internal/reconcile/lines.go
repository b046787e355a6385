package reconcile

import (
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/pkg/contracts/domain"
)

// DetailLine is one item of one bill, whatever page layout it came from.
type DetailLine struct {
	Bill          string
	HSN           string
	QuantityText  string
	TaxableAmount string
	Distance      string
	Transport     string
	From          string
	To            string
}

// Lines flattens detail results into lines. Empty results contribute nothing.
func Lines(results []domain.DetailResult) []DetailLine {
	var lines []DetailLine
	for _, r := range results {
		if !r.HasData() {
			continue
		}
		for _, it := range r.Items {
			lines = append(lines, DetailLine{
				Bill:          NormalizeBill(r.BillNo),
				HSN:           it.HSN,
				QuantityText:  it.QuantityText(),
				TaxableAmount: it.TaxableAmount,
				Distance:      r.Header.Distance,
				Transport:     r.Header.TransportType,
				From:          r.Header.FromAddress,
				To:            r.Header.ToAddress,
			})
		}
	}
	return lines
}

// Collect merges freshly extracted results with those loaded from
// checkpoints, keeping the first result per bill and shape.
func Collect(fresh, loaded []domain.DetailResult) []domain.DetailResult {
	type key struct {
		bill  string
		shape domain.DetailShape
	}
	seen := make(map[key]bool, len(fresh)+len(loaded))
	out := make([]domain.DetailResult, 0, len(fresh)+len(loaded))
	for _, set := range [][]domain.DetailResult{fresh, loaded} {
		for _, r := range set {
			k := key{NormalizeBill(r.BillNo), r.Shape}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}

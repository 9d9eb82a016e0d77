package workflow

import (
	"slices"
	"sort"

	"github.com/farmadata/autofarma_backend/config"
	"github.com/farmadata/autofarma_backend/models"
)

// SelectSupplier picks the best quote: ascending configured rank first
// (unranked suppliers share the sentinel rank and sort last), descending
// margin as tie-break. The sort is stable, so identical inputs always yield
// the identical winner. Quotes below a supplier's configured minimum margin
// are NOT filtered out; BelowMinimumMargin reports that condition separately.
func SelectSupplier(quotes []models.SupplierQuote, table *config.SupplierPriorityTable) (models.SupplierQuote, error) {
	if len(quotes) == 0 {
		return models.SupplierQuote{}, ErrNoCandidates
	}

	sorted := slices.Clone(quotes)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := table.Rank(sorted[i].Supplier), table.Rank(sorted[j].Supplier)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Margin.GreaterThan(sorted[j].Margin)
	})

	return sorted[0], nil
}

// BelowMinimumMargin reports whether a quote undercuts its supplier's
// configured margin floor. Selection ignores this on purpose; it exists so
// the engine can surface the relaxation to operators.
func BelowMinimumMargin(quote models.SupplierQuote, table *config.SupplierPriorityTable) bool {
	floor, ok := table.MinimumMargin(quote.Supplier)
	if !ok {
		return false
	}
	return quote.Margin.LessThan(floor)
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnrankedPriority is the sentinel rank for suppliers missing from the
// priority table. It sorts after every configured supplier.
const UnrankedPriority = 999

// SupplierPriorityTable ranks wholesale suppliers (lower = preferred) and
// records the minimum acceptable margin per supplier.
type SupplierPriorityTable struct {
	priorities     map[string]int
	minimumMargins map[string]decimal.Decimal
}

// DefaultSupplierPriorities mirrors the pharmacy's standing configuration.
func DefaultSupplierPriorities() *SupplierPriorityTable {
	return &SupplierPriorityTable{
		priorities: map[string]int{
			"promofarma": 1,
			"cofares":    2,
			"alliance":   3,
			"hefame":     4,
			"bidafarma":  5,
			"actibios":   6,
		},
		minimumMargins: map[string]decimal.Decimal{
			"promofarma": decimal.NewFromFloat(0.15),
			"cofares":    decimal.NewFromFloat(0.12),
			"alliance":   decimal.NewFromFloat(0.10),
			"hefame":     decimal.NewFromFloat(0.10),
			"bidafarma":  decimal.NewFromFloat(0.08),
			"actibios":   decimal.NewFromFloat(0.05),
		},
	}
}

// LoadSupplierPriorities returns the default table, with ranks overridden by
// SUPPLIER_PRIORITIES when set ("name:rank,name:rank").
func LoadSupplierPriorities() *SupplierPriorityTable {
	table := DefaultSupplierPriorities()

	raw := strings.TrimSpace(os.Getenv("SUPPLIER_PRIORITIES"))
	if raw == "" {
		return table
	}

	overrides := map[string]int{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || rank <= 0 {
			continue
		}
		overrides[strings.ToLower(strings.TrimSpace(parts[0]))] = rank
	}
	if len(overrides) > 0 {
		table.priorities = overrides
	}
	return table
}

// Rank returns the configured rank for a supplier, or UnrankedPriority.
func (t *SupplierPriorityTable) Rank(name string) int {
	if rank, ok := t.priorities[name]; ok {
		return rank
	}
	return UnrankedPriority
}

// MinimumMargin reports the configured floor for a supplier, if any.
func (t *SupplierPriorityTable) MinimumMargin(name string) (decimal.Decimal, bool) {
	m, ok := t.minimumMargins[name]
	return m, ok
}

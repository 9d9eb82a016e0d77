package workflow

import (
	"errors"
)

// The pipeline's failure taxonomy is carried by ReasonCode on the per-order
// record: input errors (missing_identifier), unreachable collaborators
// (registry_unreachable, wallet_add_failed, ...), business-rule violations
// (no_supplier_quotes, no_candidates) and the expected human escalation
// (stock_level_1). Step failures are converted at the order boundary and
// never abort sibling orders.

// ErrNoCandidates is returned by the selection policy on an empty quote list.
var ErrNoCandidates = errors.New("no supplier candidates")

// ErrOrderCancelled marks a pipeline stopped at a step boundary because the
// trace was cancelled.
var ErrOrderCancelled = errors.New("order cancelled")

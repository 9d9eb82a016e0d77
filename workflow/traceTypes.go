package workflow

import (
	"time"

	"github.com/farmadata/autofarma_backend/models"
	"github.com/shopspring/decimal"
)

type TraceStatus string

const (
	TraceStatusPending    TraceStatus = "pending"
	TraceStatusInProgress TraceStatus = "in_progress"
	TraceStatusCompleted  TraceStatus = "completed"
	TraceStatusFailed     TraceStatus = "failed"
	TraceStatusCancelled  TraceStatus = "cancelled"
)

func (s TraceStatus) Terminal() bool {
	return s == TraceStatusCompleted || s == TraceStatusFailed || s == TraceStatusCancelled
}

// CompletionType says how a completed order was sourced.
type CompletionType string

const (
	CompletionOwnStock         CompletionType = "own_stock"
	CompletionActibiosPurchase CompletionType = "actibios_purchase"
	CompletionAssignedSupplier CompletionType = "assigned_supplier"
)

// ReasonCode is the machine-readable cause on a failed or escalated order.
type ReasonCode string

const (
	ReasonMissingIdentifier      ReasonCode = "missing_identifier"
	ReasonRegistryUnreachable    ReasonCode = "registry_unreachable"
	ReasonExternalPurchaseFailed ReasonCode = "external_purchase_failed"
	ReasonRegistrationFailed     ReasonCode = "registration_failed"
	ReasonWalletAddFailed        ReasonCode = "wallet_add_failed"
	ReasonNoSupplierQuotes       ReasonCode = "no_supplier_quotes"
	ReasonNoCandidates           ReasonCode = "no_candidates"
	ReasonAssignFailed           ReasonCode = "assign_failed"
	ReasonReloadFailed           ReasonCode = "reload_failed"
	ReasonCancelled              ReasonCode = "cancelled"
	ReasonStockLevelOne          ReasonCode = "stock_level_1"
	ReasonInternal               ReasonCode = "internal_error"
)

// TraceConfig is the caller-supplied batch configuration.
type TraceConfig struct {
	// OrderFilters narrows the Farmatic order-list search. The desktop search
	// form takes a handful of short fields, so the map is bounded.
	OrderFilters map[string]string `json:"order_filters" validate:"max=16,dive,max=256"`
}

// OrderResult is the terminal record of one order's pipeline pass. It is
// never mutated after the pipeline finishes.
type OrderResult struct {
	Order          models.Order       `json:"order"`
	Status         models.OrderStatus `json:"status"`
	CompletionType CompletionType     `json:"completion_type,omitempty"`
	Reason         ReasonCode         `json:"reason,omitempty"`
	Message        string             `json:"message,omitempty"`
	Supplier       string             `json:"supplier,omitempty"`
	Price          decimal.Decimal    `json:"price"`
	PrintWarning   string             `json:"print_warning,omitempty"`
	ReportWarning  string             `json:"report_warning,omitempty"`
	FinishedAt     time.Time          `json:"finished_at"`
}

// Trace is one batch run. The engine is its only writer; once the status is
// terminal the snapshot handed out by the registry never changes again.
type Trace struct {
	ID                string         `json:"trace_id"`
	Status            TraceStatus    `json:"status"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           *time.Time     `json:"end_time,omitempty"`
	Orders            []models.Order `json:"orders"`
	ProcessedOrders   []OrderResult  `json:"processed_orders"`
	FailedOrders      []OrderResult  `json:"failed_orders"`
	HumanIntervention []OrderResult  `json:"human_intervention_required"`
	CancelledOrders   []OrderResult  `json:"cancelled_orders"`
	Config            TraceConfig    `json:"config"`
	Error             string         `json:"error,omitempty"`
}

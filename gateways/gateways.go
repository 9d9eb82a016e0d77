// Package gateways defines the narrow capability contracts the trace engine
// depends on, plus the production adapters behind them. Every collaborator is
// a blocking remote system (desktop ERP session, supplier portals, the Binary
// dashboard, a spreadsheet, a printer); the engine only ever sees these
// interfaces so tests can substitute doubles.
package gateways

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmadata/autofarma_backend/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by ProductRegistry.Lookup for unknown codes.
var ErrNotFound = errors.New("product not found")

// GatewayError marks a failure of a specific collaborator operation so the
// engine can convert it into a machine-readable per-order reason.
type GatewayError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// OrderSource pulls the pending order list that seeds a trace.
type OrderSource interface {
	GetOrderList(ctx context.Context, filters map[string]string) ([]models.Order, error)
}

// ProductRegistry is the Binary dashboard: product lookup plus idempotent
// registration of products the wholesalers do not know yet.
type ProductRegistry interface {
	Lookup(ctx context.Context, code string) (*models.ProductInfo, error)
	Register(ctx context.Context, info *models.ProductInfo) error
}

// DistributorID enumerates the wholesale portals. Dispatch is table-driven;
// adding a portal means adding a constant and a table entry, never touching
// the engine loop.
type DistributorID string

const (
	DistributorCofares   DistributorID = "cofares"
	DistributorAlliance  DistributorID = "alliance"
	DistributorHefame    DistributorID = "hefame"
	DistributorBidafarma DistributorID = "bidafarma"
)

// DistributorResult is one portal's answer to a national-code search.
type DistributorResult struct {
	Found bool
	Price decimal.Decimal
}

// DistributorGateway searches the wholesale portals and drives the Actibios
// purchase channel used for products without a national code.
type DistributorGateway interface {
	SearchByCode(ctx context.Context, distributor DistributorID, code string) (DistributorResult, error)
	Purchase(ctx context.Context, code string, quantity int) error
}

// DesktopERP is the Farmatic desktop session. The session services exactly
// one interactive operation at a time; implementations must serialize.
type DesktopERP interface {
	AddToWallet(ctx context.Context, walletType string, code string) error
	CheckWalletResult(ctx context.Context, walletType string, code string) ([]models.SupplierQuote, error)
	AssignSupplier(ctx context.Context, orderID string, supplier string) error
	ReloadAndSend(ctx context.Context, orderID string) error
}

// ReportRow is one audit row appended for a completed order.
type ReportRow struct {
	Timestamp      time.Time
	OrderID        string
	Quantity       int
	Ean            string
	Cn             string
	Description    string
	CompletionType string
	Supplier       string
	Price          decimal.Decimal
	Note           string
}

// ReportSink appends audit rows to a destination workbook. Rows are only ever
// appended, never rewritten.
type ReportSink interface {
	AppendRow(ctx context.Context, destination string, row ReportRow) error
}

// Label holds the fields printed on a fulfillment label.
type Label struct {
	Code     string
	Name     string
	Quantity int
	Supplier string
	Date     string
}

// PrintSink prints fulfillment labels. Printing is best-effort: callers must
// never fail an order on a print error.
type PrintSink interface {
	PrintLabel(ctx context.Context, label Label) error
}

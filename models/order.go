package models

import (
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusFailed            OrderStatus = "failed"
	OrderStatusHumanIntervention OrderStatus = "human_intervention"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// Order is one pending pharmacy order pulled from the Farmatic order list.
type Order struct {
	ID       string      `json:"id"`
	Ean      string      `json:"ean"`
	Barcode  string      `json:"barcode"`
	Quantity int         `json:"quantity"`
	Status   OrderStatus `json:"status"`
}

// Identifier returns the product code used to drive the order through the
// pipeline. The EAN on the order wins; the scanned barcode is the fallback.
func (o Order) Identifier() string {
	if o.Ean != "" {
		return o.Ean
	}
	return o.Barcode
}

// ProductInfo is the registry's view of a product. Cn is the Spanish national
// code; it is empty for products only known by EAN.
type ProductInfo struct {
	Ean         string          `json:"ean"`
	Cn          string          `json:"cn"`
	OwnStock    int             `json:"own_stock"`
	Description string          `json:"description"`
	TaxRate     decimal.Decimal `json:"iva"`
	Laboratory  string          `json:"laboratory"`
	Family      string          `json:"family"`
}

// Code returns the preferred identifying code: national code first, EAN after.
func (p ProductInfo) Code() string {
	if p.Cn != "" {
		return p.Cn
	}
	return p.Ean
}

// SupplierQuote is one supplier's offer read back from a Farmatic wallet.
type SupplierQuote struct {
	Supplier string          `json:"supplier"`
	Price    decimal.Decimal `json:"price"`
	Margin   decimal.Decimal `json:"margin"`
}

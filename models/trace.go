package models

import (
	"time"
)

// TraceRecord is the durable row written for every terminal trace. The live
// trace lives in the in-memory registry; this table is the audit trail.
type TraceRecord struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	Status         string     `gorm:"size:20;index;not null" json:"status"`
	StartTime      time.Time  `gorm:"not null" json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	OrderCount     int        `gorm:"not null;default:0" json:"order_count"`
	ProcessedCount int        `gorm:"not null;default:0" json:"processed_count"`
	FailedCount    int        `gorm:"not null;default:0" json:"failed_count"`
	HumanCount     int        `gorm:"not null;default:0" json:"human_count"`
	CancelledCount int        `gorm:"not null;default:0" json:"cancelled_count"`
	Error          string     `gorm:"type:text" json:"error"`
	DetailJSON     string     `gorm:"type:longtext" json:"-"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// HumanAlertRecord mirrors one line of the human-factor journal. The file is
// the source of truth; the table exists so operators can query alerts.
type HumanAlertRecord struct {
	ID          int       `gorm:"primary_key" json:"id"`
	TraceID     string    `gorm:"index;size:64" json:"trace_id"`
	OrderID     string    `gorm:"index;size:64;not null" json:"order_id"`
	ProductCode string    `gorm:"size:32" json:"product_code"`
	Reason      string    `gorm:"size:40;not null" json:"reason"`
	StockLevel  int       `json:"stock_level"`
	Message     string    `gorm:"type:text" json:"message"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

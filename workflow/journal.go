package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/farmadata/autofarma_backend/config"
	"github.com/farmadata/autofarma_backend/models"
	"github.com/sirupsen/logrus"
)

// HumanAlert is one human-factor escalation. Alerts are only ever appended to
// the journal file; the engine never rewrites or rotates it.
type HumanAlert struct {
	Timestamp   time.Time `json:"timestamp"`
	TraceID     string    `json:"trace_id"`
	OrderID     string    `json:"order_id"`
	ProductCode string    `json:"product_code"`
	Reason      string    `json:"reason"`
	StockLevel  int       `json:"stock_level"`
	Message     string    `json:"message"`
}

// AlertJournal appends human-intervention alerts as JSON lines. A DB row is
// written too when persistence is configured, best-effort.
type AlertJournal struct {
	mu     sync.Mutex
	path   string
	logger *logrus.Logger
}

func NewAlertJournal(logger *logrus.Logger, path string) *AlertJournal {
	return &AlertJournal{path: path, logger: logger}
}

func (j *AlertJournal) Append(alert HumanAlert) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append alert: %w", err)
	}

	j.logger.WithFields(logrus.Fields{
		"module":     "workflow",
		"orderId":    alert.OrderID,
		"code":       alert.ProductCode,
		"stockLevel": alert.StockLevel,
	}).Warn("human factor alert: " + alert.Message)

	if db := config.GetDB(); db != nil {
		record := models.HumanAlertRecord{
			TraceID:     alert.TraceID,
			OrderID:     alert.OrderID,
			ProductCode: alert.ProductCode,
			Reason:      alert.Reason,
			StockLevel:  alert.StockLevel,
			Message:     alert.Message,
		}
		if err := db.Create(&record).Error; err != nil {
			config.LogError(j.logger, "workflow", "AlertJournal.Append", "db.Create", alert.OrderID, err)
		}
	}
	return nil
}

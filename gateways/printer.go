package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LabelPrinter renders fulfillment labels into a spool directory the print
// host watches. Failures here must never fail an order; the engine records
// them as a warning only.
type LabelPrinter struct {
	logger   *logrus.Logger
	spoolDir string
}

func NewLabelPrinter(logger *logrus.Logger, spoolDir string) *LabelPrinter {
	return &LabelPrinter{logger: logger, spoolDir: spoolDir}
}

func (p *LabelPrinter) PrintLabel(ctx context.Context, label Label) error {
	if err := ctx.Err(); err != nil {
		return &GatewayError{Collaborator: "printer", Op: "print_label", Err: err}
	}

	if err := os.MkdirAll(p.spoolDir, 0o755); err != nil {
		return &GatewayError{Collaborator: "printer", Op: "print_label", Err: err}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Codigo: %s\n", label.Code)
	fmt.Fprintf(&b, "Producto: %s\n", truncate(label.Name, 30))
	fmt.Fprintf(&b, "Cantidad: %d\n", label.Quantity)
	if label.Supplier != "" {
		fmt.Fprintf(&b, "Proveedor: %s\n", label.Supplier)
	}
	fmt.Fprintf(&b, "Fecha: %s\n", label.Date)

	name := fmt.Sprintf("label_%s_%d.txt", sanitize(label.Code), time.Now().UnixNano())
	path := filepath.Join(p.spoolDir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return &GatewayError{Collaborator: "printer", Op: "print_label", Err: err}
	}

	p.logger.WithFields(logrus.Fields{
		"module": "gateways",
		"label":  path,
	}).Info("label spooled")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}

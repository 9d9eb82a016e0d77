package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineSettings carries every tuning knob of the trace engine. All values
// come from env with safe defaults, so a bare process still runs.
type EngineSettings struct {
	// TraceWorkers bounds how many traces execute at once.
	TraceWorkers int
	// OrderFanout bounds how many orders of one trace run in parallel.
	OrderFanout int
	// GatewayTimeout applies to every single external gateway call.
	GatewayTimeout time.Duration
	// HistoryCap bounds the FIFO history of terminal traces.
	HistoryCap int
	// WalletType is the Farmatic staging wallet used to solicit quotes.
	WalletType string
	// Distributors is the portal query order; every entry is always asked.
	Distributors []string
	// ExcelOutputPath is the processed-orders workbook.
	ExcelOutputPath string
	// JournalPath is the append-only human-factor alert log.
	JournalPath string
	// LabelSpoolDir receives rendered fulfillment labels.
	LabelSpoolDir string
	// RegistryBaseURL / RegistryAPIKey configure the Binary dashboard client.
	RegistryBaseURL string
	RegistryAPIKey  string
	// OrdersExportPath is the JSON drop the Farmatic session exporter writes.
	OrdersExportPath string
	// WalletResultsPath is the JSON drop with per-code wallet quotes.
	WalletResultsPath string
}

func LoadEngineSettings() EngineSettings {
	return EngineSettings{
		TraceWorkers:      intFromEnv("TRACE_WORKERS", 4),
		OrderFanout:       intFromEnv("ORDER_FANOUT", 4),
		GatewayTimeout:    time.Duration(intFromEnv("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
		HistoryCap:        intFromEnv("TRACE_HISTORY_CAP", 100),
		WalletType:        stringFromEnv("WALLET_TYPE", "promofarma"),
		Distributors:      listFromEnv("DISTRIBUTORS", []string{"cofares", "alliance", "hefame", "bidafarma"}),
		ExcelOutputPath:   stringFromEnv("EXCEL_OUTPUT_PATH", "output/pedidos_procesados.xlsx"),
		JournalPath:       stringFromEnv("JOURNAL_PATH", "logs/human_factor_alerts.log"),
		LabelSpoolDir:     stringFromEnv("LABEL_SPOOL_DIR", "output/labels"),
		RegistryBaseURL:   stringFromEnv("REGISTRY_BASE_URL", "http://localhost:3000"),
		RegistryAPIKey:    os.Getenv("REGISTRY_API_KEY"),
		OrdersExportPath:  stringFromEnv("ORDERS_EXPORT_PATH", "data/farmatic_orders.json"),
		WalletResultsPath: stringFromEnv("WALLET_RESULTS_PATH", "data/farmatic_wallet.json"),
	}
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func listFromEnv(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

package workflow

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmadata/autofarma_backend/config"
	"github.com/farmadata/autofarma_backend/gateways"
	"github.com/farmadata/autofarma_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeOrders struct {
	calls  int32
	orders []models.Order
	err    error
	get    func(ctx context.Context) ([]models.Order, error)
}

func (f *fakeOrders) GetOrderList(ctx context.Context, filters map[string]string) ([]models.Order, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.get != nil {
		return f.get(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

type fakeRegistry struct {
	lookups   int32
	registers int32
	lookup    func(code string) (*models.ProductInfo, error)
	register  func(info *models.ProductInfo) error
}

func (f *fakeRegistry) Lookup(ctx context.Context, code string) (*models.ProductInfo, error) {
	atomic.AddInt32(&f.lookups, 1)
	if f.lookup != nil {
		return f.lookup(code)
	}
	return &models.ProductInfo{Ean: code, Cn: "123456", Description: "producto de prueba"}, nil
}

func (f *fakeRegistry) Register(ctx context.Context, info *models.ProductInfo) error {
	atomic.AddInt32(&f.registers, 1)
	if f.register != nil {
		return f.register(info)
	}
	return nil
}

type fakeDistributors struct {
	searches  int32
	purchases int32
	search    func(id gateways.DistributorID, code string) (gateways.DistributorResult, error)
	purchase  func(code string, quantity int) error
}

func (f *fakeDistributors) SearchByCode(ctx context.Context, id gateways.DistributorID, code string) (gateways.DistributorResult, error) {
	atomic.AddInt32(&f.searches, 1)
	if f.search != nil {
		return f.search(id, code)
	}
	return gateways.DistributorResult{Found: true}, nil
}

func (f *fakeDistributors) Purchase(ctx context.Context, code string, quantity int) error {
	atomic.AddInt32(&f.purchases, 1)
	if f.purchase != nil {
		return f.purchase(code, quantity)
	}
	return nil
}

type fakeERP struct {
	adds    int32
	checks  int32
	assigns int32
	reloads int32
	add     func(walletType, code string) error
	check   func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error)
	assign  func(orderID, supplier string) error
	reload  func(orderID string) error
}

func (f *fakeERP) AddToWallet(ctx context.Context, walletType string, code string) error {
	atomic.AddInt32(&f.adds, 1)
	if f.add != nil {
		return f.add(walletType, code)
	}
	return nil
}

func (f *fakeERP) CheckWalletResult(ctx context.Context, walletType string, code string) ([]models.SupplierQuote, error) {
	atomic.AddInt32(&f.checks, 1)
	if f.check != nil {
		return f.check(ctx, walletType, code)
	}
	return []models.SupplierQuote{
		{Supplier: "promofarma", Price: decimal.NewFromFloat(4.20), Margin: decimal.NewFromFloat(0.20)},
	}, nil
}

func (f *fakeERP) AssignSupplier(ctx context.Context, orderID string, supplier string) error {
	atomic.AddInt32(&f.assigns, 1)
	if f.assign != nil {
		return f.assign(orderID, supplier)
	}
	return nil
}

func (f *fakeERP) ReloadAndSend(ctx context.Context, orderID string) error {
	atomic.AddInt32(&f.reloads, 1)
	if f.reload != nil {
		return f.reload(orderID)
	}
	return nil
}

type fakeReports struct {
	rows int32
	err  error
}

func (f *fakeReports) AppendRow(ctx context.Context, destination string, row gateways.ReportRow) error {
	atomic.AddInt32(&f.rows, 1)
	return f.err
}

type fakePrinter struct {
	labels int32
	err    error
}

func (f *fakePrinter) PrintLabel(ctx context.Context, label gateways.Label) error {
	atomic.AddInt32(&f.labels, 1)
	return f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSettings(t *testing.T) config.EngineSettings {
	t.Helper()
	dir := t.TempDir()
	return config.EngineSettings{
		TraceWorkers:      2,
		OrderFanout:       2,
		GatewayTimeout:    2 * time.Second,
		HistoryCap:        10,
		WalletType:        "promofarma",
		Distributors:      []string{"cofares", "alliance", "hefame", "bidafarma"},
		ExcelOutputPath:   filepath.Join(dir, "pedidos.xlsx"),
		JournalPath:       filepath.Join(dir, "human_factor_alerts.log"),
		LabelSpoolDir:     filepath.Join(dir, "labels"),
		OrdersExportPath:  filepath.Join(dir, "orders.json"),
		WalletResultsPath: filepath.Join(dir, "wallet.json"),
	}
}

func newTestEngine(t *testing.T, gw Gateways) (*Engine, config.EngineSettings) {
	t.Helper()
	settings := testSettings(t)
	logger := quietLogger()
	engine := NewEngine(
		logger,
		settings,
		config.DefaultSupplierPriorities(),
		gw,
		NewTraceRegistry(settings.HistoryCap),
		NewAlertJournal(logger, settings.JournalPath),
	)
	return engine, settings
}

func waitForTerminal(t *testing.T, engine *Engine, id string) Trace {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, ok := engine.Registry().Snapshot(id)
		if ok && snapshot.Status.Terminal() {
			return snapshot
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("trace %s never reached a terminal status", id)
	return Trace{}
}

func singleOrder() []models.Order {
	return []models.Order{{ID: "PED001", Ean: "8470001234567", Quantity: 2, Status: models.OrderStatusPending}}
}

func TestOwnStockCompletesWithoutSourcing(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		return &models.ProductInfo{Ean: code, Cn: "123456", OwnStock: 5, Description: "ibuprofeno"}, nil
	}}
	distributors := &fakeDistributors{}
	erp := &fakeERP{}
	reports := &fakeReports{}
	printer := &fakePrinter{}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: distributors,
		ERP:          erp,
		Reports:      reports,
		Printer:      printer,
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if trace.Status != TraceStatusCompleted {
		t.Fatalf("status = %s, want completed", trace.Status)
	}
	if len(trace.ProcessedOrders) != 1 {
		t.Fatalf("processed = %d, want 1", len(trace.ProcessedOrders))
	}
	res := trace.ProcessedOrders[0]
	if res.CompletionType != CompletionOwnStock {
		t.Errorf("completion = %s, want own_stock", res.CompletionType)
	}
	if n := atomic.LoadInt32(&distributors.searches); n != 0 {
		t.Errorf("distributor searches = %d, want 0", n)
	}
	if n := atomic.LoadInt32(&erp.adds) + atomic.LoadInt32(&erp.checks) + atomic.LoadInt32(&erp.assigns); n != 0 {
		t.Errorf("ERP calls = %d, want 0", n)
	}
	if n := atomic.LoadInt32(&reports.rows); n != 1 {
		t.Errorf("report rows = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&printer.labels); n != 1 {
		t.Errorf("labels = %d, want 1", n)
	}
}

func TestStockLevelOneEscalates(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		return &models.ProductInfo{Ean: code, Cn: "123456", OwnStock: 1, Description: "insulina"}, nil
	}}
	erp := &fakeERP{}
	engine, settings := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          erp,
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.HumanIntervention) != 1 {
		t.Fatalf("human intervention = %d, want 1", len(trace.HumanIntervention))
	}
	res := trace.HumanIntervention[0]
	if res.Status != models.OrderStatusHumanIntervention {
		t.Errorf("status = %s, want human_intervention", res.Status)
	}
	if res.Reason != ReasonStockLevelOne {
		t.Errorf("reason = %s, want stock_level_1", res.Reason)
	}
	if n := atomic.LoadInt32(&erp.adds) + atomic.LoadInt32(&erp.checks); n != 0 {
		t.Errorf("ERP calls = %d, want 0", n)
	}

	raw, err := os.ReadFile(settings.JournalPath)
	if err != nil {
		t.Fatalf("journal not written: %v", err)
	}
	if !strings.Contains(string(raw), "123456") || !strings.Contains(string(raw), string(ReasonStockLevelOne)) {
		t.Errorf("journal line missing fields: %q", raw)
	}
}

func TestMissingIdentifierFailsBeforeAnyGatewayCall(t *testing.T) {
	registry := &fakeRegistry{}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: []models.Order{{ID: "PED002", Quantity: 1}}},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.FailedOrders) != 1 {
		t.Fatalf("failed = %d, want 1", len(trace.FailedOrders))
	}
	if trace.FailedOrders[0].Reason != ReasonMissingIdentifier {
		t.Errorf("reason = %s, want missing_identifier", trace.FailedOrders[0].Reason)
	}
	if n := atomic.LoadInt32(&registry.lookups); n != 0 {
		t.Errorf("registry lookups = %d, want 0", n)
	}
}

func TestOrderListFailureFailsTrace(t *testing.T) {
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{err: errors.New("session busy")},
		Registry:     &fakeRegistry{},
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if trace.Status != TraceStatusFailed {
		t.Fatalf("status = %s, want failed", trace.Status)
	}
	if trace.Error == "" {
		t.Error("trace error message is empty")
	}
	if len(trace.ProcessedOrders)+len(trace.FailedOrders)+len(trace.HumanIntervention)+len(trace.CancelledOrders) != 0 {
		t.Error("trace with no order list must have empty buckets")
	}
}

func TestAssignedSupplierHappyPath(t *testing.T) {
	erp := &fakeERP{check: func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error) {
		return []models.SupplierQuote{
			{Supplier: "cofares", Price: decimal.NewFromFloat(3.10), Margin: decimal.NewFromFloat(0.30)},
			{Supplier: "promofarma", Price: decimal.NewFromFloat(3.50), Margin: decimal.NewFromFloat(0.18)},
		}, nil
	}}
	reports := &fakeReports{}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     &fakeRegistry{},
		Distributors: &fakeDistributors{},
		ERP:          erp,
		Reports:      reports,
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.ProcessedOrders) != 1 {
		t.Fatalf("processed = %d, want 1 (failed: %+v)", len(trace.ProcessedOrders), trace.FailedOrders)
	}
	res := trace.ProcessedOrders[0]
	if res.CompletionType != CompletionAssignedSupplier {
		t.Errorf("completion = %s, want assigned_supplier", res.CompletionType)
	}
	if res.Supplier != "promofarma" {
		t.Errorf("supplier = %s, want promofarma (rank beats margin)", res.Supplier)
	}
	if a, r := atomic.LoadInt32(&erp.assigns), atomic.LoadInt32(&erp.reloads); a != 1 || r != 1 {
		t.Errorf("assign/reload = %d/%d, want 1/1", a, r)
	}
	if n := atomic.LoadInt32(&reports.rows); n != 1 {
		t.Errorf("report rows = %d, want 1", n)
	}
}

func TestEmptyWalletRetriesExactlyOnce(t *testing.T) {
	registry := &fakeRegistry{}
	erp := &fakeERP{check: func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error) {
		return nil, nil
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: &fakeDistributors{}, // found on the portals, so no step-4 registration
		ERP:          erp,
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.FailedOrders) != 1 {
		t.Fatalf("failed = %d, want 1", len(trace.FailedOrders))
	}
	if trace.FailedOrders[0].Reason != ReasonNoSupplierQuotes {
		t.Errorf("reason = %s, want no_supplier_quotes", trace.FailedOrders[0].Reason)
	}
	if n := atomic.LoadInt32(&registry.registers); n != 1 {
		t.Errorf("registrations = %d, want exactly 1", n)
	}
	if n := atomic.LoadInt32(&erp.checks); n != 2 {
		t.Errorf("wallet checks = %d, want 2 (initial + one retry)", n)
	}
}

func TestRegistrationFailureDuringRetryIsFinal(t *testing.T) {
	registry := &fakeRegistry{register: func(info *models.ProductInfo) error {
		return errors.New("dashboard rejected the product")
	}}
	erp := &fakeERP{check: func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error) {
		return nil, nil
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          erp,
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.FailedOrders) != 1 {
		t.Fatalf("failed = %d, want 1", len(trace.FailedOrders))
	}
	if trace.FailedOrders[0].Reason != ReasonRegistrationFailed {
		t.Errorf("reason = %s, want registration_failed", trace.FailedOrders[0].Reason)
	}
	if n := atomic.LoadInt32(&erp.checks); n != 1 {
		t.Errorf("wallet checks = %d, want 1 (retry skipped after failed registration)", n)
	}
}

func TestNoNationalCodeBuysFromActibios(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		return &models.ProductInfo{Ean: code, Description: "parafarmacia"}, nil
	}}
	distributors := &fakeDistributors{}
	erp := &fakeERP{}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: distributors,
		ERP:          erp,
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.ProcessedOrders) != 1 {
		t.Fatalf("processed = %d, want 1", len(trace.ProcessedOrders))
	}
	if trace.ProcessedOrders[0].CompletionType != CompletionActibiosPurchase {
		t.Errorf("completion = %s, want actibios_purchase", trace.ProcessedOrders[0].CompletionType)
	}
	if n := atomic.LoadInt32(&distributors.purchases); n != 1 {
		t.Errorf("purchases = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&erp.adds); n != 0 {
		t.Errorf("wallet adds = %d, want 0 for an EAN-only product", n)
	}
}

func TestActibiosPurchaseFailure(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		return &models.ProductInfo{Ean: code}, nil
	}}
	distributors := &fakeDistributors{purchase: func(code string, quantity int) error {
		return errors.New("portal down")
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: distributors,
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.FailedOrders) != 1 {
		t.Fatalf("failed = %d, want 1", len(trace.FailedOrders))
	}
	if trace.FailedOrders[0].Reason != ReasonExternalPurchaseFailed {
		t.Errorf("reason = %s, want external_purchase_failed", trace.FailedOrders[0].Reason)
	}
}

func TestReportAndPrintFailuresAreWarningsOnly(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		return &models.ProductInfo{Ean: code, Cn: "123456", OwnStock: 9}, nil
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: singleOrder()},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{err: errors.New("workbook locked")},
		Printer:      &fakePrinter{err: errors.New("spool full")},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if len(trace.ProcessedOrders) != 1 {
		t.Fatalf("processed = %d, want 1", len(trace.ProcessedOrders))
	}
	res := trace.ProcessedOrders[0]
	if res.Status != models.OrderStatusCompleted {
		t.Errorf("status = %s, want completed despite sink failures", res.Status)
	}
	if res.ReportWarning == "" || res.PrintWarning == "" {
		t.Errorf("warnings not recorded: report=%q print=%q", res.ReportWarning, res.PrintWarning)
	}
}

func TestBucketsAreExclusiveAndExhaustive(t *testing.T) {
	orders := []models.Order{
		{ID: "A", Ean: "111", Quantity: 1}, // own stock
		{ID: "B", Ean: "222", Quantity: 1}, // stock 1 escalation
		{ID: "C", Quantity: 1},             // missing identifier
		{ID: "D", Ean: "444", Quantity: 1}, // full sourcing
	}
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		switch code {
		case "111":
			return &models.ProductInfo{Ean: code, OwnStock: 3}, nil
		case "222":
			return &models.ProductInfo{Ean: code, OwnStock: 1}, nil
		default:
			return &models.ProductInfo{Ean: code, Cn: "123456"}, nil
		}
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: orders},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	total := len(trace.ProcessedOrders) + len(trace.FailedOrders) + len(trace.HumanIntervention) + len(trace.CancelledOrders)
	if total != len(orders) {
		t.Fatalf("bucketed %d results for %d orders", total, len(orders))
	}
	if len(trace.ProcessedOrders) != 2 || len(trace.HumanIntervention) != 1 || len(trace.FailedOrders) != 1 {
		t.Errorf("buckets = processed:%d failed:%d human:%d cancelled:%d",
			len(trace.ProcessedOrders), len(trace.FailedOrders), len(trace.HumanIntervention), len(trace.CancelledOrders))
	}
}

func TestCancelTraceMarksPendingOrdersCancelled(t *testing.T) {
	orders := make([]models.Order, 8)
	for i := range orders {
		orders[i] = models.Order{ID: string(rune('A' + i)), Ean: "8470000000000", Quantity: 1}
	}
	started := make(chan struct{}, len(orders))
	erp := &fakeERP{check: func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       &fakeOrders{orders: orders},
		Registry:     &fakeRegistry{},
		Distributors: &fakeDistributors{},
		ERP:          erp,
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})

	// Wait for the first order to block inside the wallet check, then cancel.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no order reached the wallet check")
	}
	if !engine.CancelTrace(id) {
		t.Fatal("CancelTrace returned false for an active trace")
	}

	trace := waitForTerminal(t, engine, id)
	if trace.Status != TraceStatusCancelled {
		t.Fatalf("status = %s, want cancelled", trace.Status)
	}
	if len(trace.CancelledOrders) == 0 {
		t.Error("no orders recorded as cancelled")
	}
	total := len(trace.ProcessedOrders) + len(trace.FailedOrders) + len(trace.HumanIntervention) + len(trace.CancelledOrders)
	if total != len(orders) {
		t.Errorf("bucketed %d results for %d orders", total, len(orders))
	}
	for _, res := range trace.CancelledOrders {
		if res.Reason != ReasonCancelled {
			t.Errorf("cancelled order %s has reason %s", res.Order.ID, res.Reason)
		}
	}
}

func TestCancelDuringOrderListFetchCancelsTrace(t *testing.T) {
	fetching := make(chan struct{})
	orders := &fakeOrders{get: func(ctx context.Context) ([]models.Order, error) {
		close(fetching)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders:       orders,
		Registry:     &fakeRegistry{},
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})

	select {
	case <-fetching:
	case <-time.After(5 * time.Second):
		t.Fatal("order-list fetch never started")
	}
	if !engine.CancelTrace(id) {
		t.Fatal("CancelTrace returned false for an active trace")
	}

	trace := waitForTerminal(t, engine, id)
	if trace.Status != TraceStatusCancelled {
		t.Fatalf("status = %s (error=%q), want cancelled", trace.Status, trace.Error)
	}
	if trace.Error != "" {
		t.Errorf("cancelled trace carries an error: %q", trace.Error)
	}
	if total := len(trace.ProcessedOrders) + len(trace.FailedOrders) + len(trace.HumanIntervention) + len(trace.CancelledOrders); total != 0 {
		t.Errorf("bucketed %d results for a trace with no order list", total)
	}
}

func TestGatewayTimeoutFailsLikeAnyGatewayError(t *testing.T) {
	settings := testSettings(t)
	settings.GatewayTimeout = 50 * time.Millisecond
	logger := quietLogger()

	// The wallet check respects its context but never answers in time.
	erp := &fakeERP{check: func(ctx context.Context, walletType, code string) ([]models.SupplierQuote, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	engine := NewEngine(
		logger,
		settings,
		config.DefaultSupplierPriorities(),
		Gateways{
			Orders:       &fakeOrders{orders: singleOrder()},
			Registry:     &fakeRegistry{},
			Distributors: &fakeDistributors{},
			ERP:          erp,
			Reports:      &fakeReports{},
			Printer:      &fakePrinter{},
		},
		NewTraceRegistry(settings.HistoryCap),
		NewAlertJournal(logger, settings.JournalPath),
	)

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	// The trace itself completes; the timed-out order fails like any other
	// gateway failure after the capped retry.
	if trace.Status != TraceStatusCompleted {
		t.Fatalf("status = %s, want completed", trace.Status)
	}
	if len(trace.FailedOrders) != 1 {
		t.Fatalf("failed = %d, want 1 (cancelled: %d)", len(trace.FailedOrders), len(trace.CancelledOrders))
	}
	if trace.FailedOrders[0].Reason != ReasonNoSupplierQuotes {
		t.Errorf("reason = %s, want no_supplier_quotes", trace.FailedOrders[0].Reason)
	}
	if n := atomic.LoadInt32(&erp.checks); n != 2 {
		t.Errorf("wallet checks = %d, want 2 (initial + one retry, then stop)", n)
	}
}

func TestPanicInOneOrderDoesNotSinkSiblings(t *testing.T) {
	registry := &fakeRegistry{lookup: func(code string) (*models.ProductInfo, error) {
		if code == "boom" {
			panic("collaborator exploded")
		}
		return &models.ProductInfo{Ean: code, OwnStock: 4}, nil
	}}
	engine, _ := newTestEngine(t, Gateways{
		Orders: &fakeOrders{orders: []models.Order{
			{ID: "P1", Ean: "boom", Quantity: 1},
			{ID: "P2", Ean: "8470009999999", Quantity: 1},
		}},
		Registry:     registry,
		Distributors: &fakeDistributors{},
		ERP:          &fakeERP{},
		Reports:      &fakeReports{},
		Printer:      &fakePrinter{},
	})

	id := engine.StartTrace(context.Background(), TraceConfig{})
	trace := waitForTerminal(t, engine, id)

	if trace.Status != TraceStatusCompleted {
		t.Fatalf("status = %s, want completed", trace.Status)
	}
	if len(trace.FailedOrders) != 1 || trace.FailedOrders[0].Reason != ReasonInternal {
		t.Fatalf("expected one internal_error failure, got %+v", trace.FailedOrders)
	}
	if len(trace.ProcessedOrders) != 1 {
		t.Errorf("sibling order did not complete: %+v", trace.ProcessedOrders)
	}
}

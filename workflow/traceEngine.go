package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/farmadata/autofarma_backend/config"
	"github.com/farmadata/autofarma_backend/gateways"
	"github.com/farmadata/autofarma_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("autofarma-backend")

// Gateways bundles the external collaborators the engine drives. Everything
// is an interface so tests can substitute doubles.
type Gateways struct {
	Orders       gateways.OrderSource
	Registry     gateways.ProductRegistry
	Distributors gateways.DistributorGateway
	ERP          gateways.DesktopERP
	Reports      gateways.ReportSink
	Printer      gateways.PrintSink
}

// Engine runs traces: it pulls the pending order list, pushes every order
// through the sourcing pipeline and buckets the outcomes. Traces execute on a
// bounded worker pool; orders inside one trace fan out up to OrderFanout
// while each order's own pipeline stays strictly sequential.
type Engine struct {
	gw         Gateways
	registry   *TraceRegistry
	journal    *AlertJournal
	priorities *config.SupplierPriorityTable
	settings   config.EngineSettings
	logger     *logrus.Logger
	traceSlots chan struct{}
	wg         sync.WaitGroup
}

func NewEngine(
	logger *logrus.Logger,
	settings config.EngineSettings,
	priorities *config.SupplierPriorityTable,
	gw Gateways,
	registry *TraceRegistry,
	journal *AlertJournal,
) *Engine {
	if settings.TraceWorkers <= 0 {
		settings.TraceWorkers = 1
	}
	if settings.OrderFanout <= 0 {
		settings.OrderFanout = 1
	}
	if settings.GatewayTimeout <= 0 {
		settings.GatewayTimeout = 30 * time.Second
	}
	return &Engine{
		gw:         gw,
		registry:   registry,
		journal:    journal,
		priorities: priorities,
		settings:   settings,
		logger:     logger,
		traceSlots: make(chan struct{}, settings.TraceWorkers),
	}
}

func (e *Engine) Registry() *TraceRegistry {
	return e.registry
}

// StartTrace registers a new trace and schedules it on the worker pool. The
// returned id is pollable immediately; the caller is never blocked for the
// duration of the batch.
func (e *Engine) StartTrace(ctx context.Context, cfg TraceConfig) string {
	id := "trace_" + uuid.NewString()

	// The trace outlives the HTTP request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.registry.Create(id, cfg, cancel)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.traceSlots <- struct{}{}
		defer func() { <-e.traceSlots }()
		e.runTrace(runCtx, id, cfg)
	}()
	return id
}

// CancelTrace requests cancellation. The engine stops dequeuing orders and
// marks every order that has not reached a terminal state as cancelled.
func (e *Engine) CancelTrace(id string) bool {
	return e.registry.Cancel(id)
}

// Wait blocks until every scheduled trace has finalized. Used on shutdown so
// no trace is left dangling in the registry.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) runTrace(ctx context.Context, id string, cfg TraceConfig) {
	ctx, span := tracer.Start(ctx, "trace.run",
		oteltrace.WithAttributes(attribute.String("trace.id", id)))
	defer span.End()

	var orders []models.Order
	err := e.step(ctx, func(c context.Context) error {
		var err error
		orders, err = e.gw.Orders.GetOrderList(c, cfg.OrderFilters)
		return err
	})
	if err != nil {
		// Trace-level failure: no partial processing is attempted. A
		// cancellation arriving mid-fetch is not a failure.
		status, msg := TraceStatusFailed, fmt.Sprintf("order list unavailable: %v", err)
		if errors.Is(err, ErrOrderCancelled) {
			status, msg = TraceStatusCancelled, ""
		} else {
			config.LogError(e.logger, "workflow", "runTrace", "get_order_list", id, err)
		}
		snapshot, _ := e.registry.Finalize(id, status, msg)
		e.persistTrace(snapshot)
		span.SetAttributes(attribute.String("trace.status", string(status)))
		return
	}
	e.registry.SetOrders(id, orders)

	sem := make(chan struct{}, e.settings.OrderFanout)
	var wg sync.WaitGroup
	for _, order := range orders {
		if ctx.Err() != nil {
			e.registry.RecordResult(id, e.cancelResult(order))
			continue
		}
		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			e.registry.RecordResult(id, e.cancelResult(order))
			wg.Done()
			continue
		}
		go func(o models.Order) {
			defer wg.Done()
			defer func() { <-sem }()
			e.registry.RecordResult(id, e.processOrder(ctx, id, o))
		}(order)
	}
	wg.Wait()

	status := TraceStatusCompleted
	if ctx.Err() != nil {
		status = TraceStatusCancelled
	}
	snapshot, _ := e.registry.Finalize(id, status, "")
	e.persistTrace(snapshot)
	span.SetAttributes(attribute.String("trace.status", string(status)))

	e.logger.WithFields(logrus.Fields{
		"module":            "workflow",
		"traceId":           id,
		"status":            status,
		"processed":         len(snapshot.ProcessedOrders),
		"failed":            len(snapshot.FailedOrders),
		"humanIntervention": len(snapshot.HumanIntervention),
		"cancelled":         len(snapshot.CancelledOrders),
	}).Info("trace finished")
}

// processOrder is the order boundary: whatever happens inside the pipeline,
// including a panicking collaborator, becomes a terminal record for this
// order only and never touches its siblings.
func (e *Engine) processOrder(ctx context.Context, traceID string, order models.Order) (res OrderResult) {
	ctx, span := tracer.Start(ctx, "trace.order",
		oteltrace.WithAttributes(
			attribute.String("trace.id", traceID),
			attribute.String("order.id", order.ID),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res = e.fail(order, ReasonInternal, fmt.Sprintf("panic while processing order: %v", r))
		}
		if res.FinishedAt.IsZero() {
			res.FinishedAt = time.Now()
		}
		span.SetAttributes(attribute.String("order.status", string(res.Status)))
	}()

	return e.pipeline(ctx, traceID, order)
}

func (e *Engine) pipeline(ctx context.Context, traceID string, order models.Order) OrderResult {
	// Step 1: identify.
	code := order.Identifier()
	if code == "" {
		return e.fail(order, ReasonMissingIdentifier, "order carries no EAN or barcode")
	}

	// Step 2: resolve product info.
	var info *models.ProductInfo
	if err := e.step(ctx, func(c context.Context) error {
		var err error
		info, err = e.gw.Registry.Lookup(c, code)
		return err
	}); err != nil {
		return e.failFromErr(order, ReasonRegistryUnreachable, err)
	}

	// Step 3: stock branch.
	if info.OwnStock > 1 {
		return e.finalizeOrder(ctx, order, info, CompletionOwnStock, nil)
	}
	if info.OwnStock == 1 {
		alert := HumanAlert{
			Timestamp:   time.Now(),
			TraceID:     traceID,
			OrderID:     order.ID,
			ProductCode: info.Code(),
			Reason:      string(ReasonStockLevelOne),
			StockLevel:  info.OwnStock,
			Message:     "product with stock = 1 requires human intervention",
		}
		// The escalation stands even when the journal write fails.
		if err := e.journal.Append(alert); err != nil {
			config.LogError(e.logger, "workflow", "pipeline", "journal.Append", order.ID, err)
		}
		return OrderResult{
			Order:   order,
			Status:  models.OrderStatusHumanIntervention,
			Reason:  ReasonStockLevelOne,
			Message: alert.Message,
		}
	}

	// Step 4: sourcing branch on national code.
	if info.Cn == "" {
		if err := e.step(ctx, func(c context.Context) error {
			return e.gw.Distributors.Purchase(c, info.Ean, order.Quantity)
		}); err != nil {
			return e.failFromErr(order, ReasonExternalPurchaseFailed, err)
		}
		return e.finalizeOrder(ctx, order, info, CompletionActibiosPurchase, nil)
	}

	found := false
	for _, name := range e.settings.Distributors {
		var dres gateways.DistributorResult
		err := e.step(ctx, func(c context.Context) error {
			var err error
			dres, err = e.gw.Distributors.SearchByCode(c, gateways.DistributorID(name), info.Cn)
			return err
		})
		if errors.Is(err, ErrOrderCancelled) {
			return e.cancelResult(order)
		}
		if err != nil {
			// A dead portal counts as "not found"; the remaining portals are
			// still asked.
			config.LogError(e.logger, "workflow", "pipeline", "search_by_code "+name, order.ID, err)
			continue
		}
		if dres.Found {
			found = true
		}
	}
	if !found {
		if err := e.register(ctx, info); err != nil {
			return e.failFromErr(order, ReasonRegistrationFailed, err)
		}
		// Re-derive the registry view now that the product exists.
		if err := e.step(ctx, func(c context.Context) error {
			var err error
			info, err = e.gw.Registry.Lookup(c, code)
			return err
		}); err != nil {
			return e.failFromErr(order, ReasonRegistryUnreachable, err)
		}
	}

	// Step 5: ERP staging.
	if err := e.step(ctx, func(c context.Context) error {
		return e.gw.ERP.AddToWallet(c, e.settings.WalletType, info.Cn)
	}); err != nil {
		return e.failFromErr(order, ReasonWalletAddFailed, err)
	}

	// Step 6: quote retrieval, one capped retry after a fresh registration.
	quotes, err := e.checkWallet(ctx, info.Cn)
	if errors.Is(err, ErrOrderCancelled) {
		return e.cancelResult(order)
	}
	if err != nil || len(quotes) == 0 {
		// When the registration itself fails, that is the final and most
		// specific reason; the second check is skipped.
		if rerr := e.register(ctx, info); rerr != nil {
			if errors.Is(rerr, ErrOrderCancelled) {
				return e.cancelResult(order)
			}
			return e.fail(order, ReasonRegistrationFailed,
				fmt.Sprintf("registration after empty wallet result failed: %v", rerr))
		}
		quotes, err = e.checkWallet(ctx, info.Cn)
		if errors.Is(err, ErrOrderCancelled) {
			return e.cancelResult(order)
		}
		if err != nil || len(quotes) == 0 {
			return e.fail(order, ReasonNoSupplierQuotes, "wallet returned no supplier quotes after retry")
		}
	}

	// Step 7: supplier selection.
	pick, err := SelectSupplier(quotes, e.priorities)
	if err != nil {
		return e.fail(order, ReasonNoCandidates, err.Error())
	}
	if BelowMinimumMargin(pick, e.priorities) {
		config.LogWarn(e.logger, "workflow", "pipeline", pick.Supplier,
			"chosen quote is below the supplier's configured minimum margin")
	}

	// Step 8: assignment.
	if err := e.step(ctx, func(c context.Context) error {
		return e.gw.ERP.AssignSupplier(c, order.ID, pick.Supplier)
	}); err != nil {
		return e.failFromErr(order, ReasonAssignFailed, err)
	}
	if err := e.step(ctx, func(c context.Context) error {
		return e.gw.ERP.ReloadAndSend(c, order.ID)
	}); err != nil {
		return e.failFromErr(order, ReasonReloadFailed, err)
	}

	return e.finalizeOrder(ctx, order, info, CompletionAssignedSupplier, &pick)
}

// finalizeOrder writes the audit row and spools the fulfillment label. Both
// are recorded as warnings on failure; a completed order stays completed.
func (e *Engine) finalizeOrder(ctx context.Context, order models.Order, info *models.ProductInfo, completion CompletionType, pick *models.SupplierQuote) OrderResult {
	res := OrderResult{
		Order:          order,
		Status:         models.OrderStatusCompleted,
		CompletionType: completion,
	}
	if pick != nil {
		res.Supplier = pick.Supplier
		res.Price = pick.Price
	}

	row := gateways.ReportRow{
		Timestamp:      time.Now(),
		OrderID:        order.ID,
		Quantity:       order.Quantity,
		Ean:            info.Ean,
		Cn:             info.Cn,
		Description:    info.Description,
		CompletionType: string(completion),
		Supplier:       res.Supplier,
		Price:          res.Price,
		Note:           "procesado automaticamente",
	}
	if err := e.step(ctx, func(c context.Context) error {
		return e.gw.Reports.AppendRow(c, e.settings.ExcelOutputPath, row)
	}); err != nil {
		res.ReportWarning = err.Error()
		config.LogError(e.logger, "workflow", "finalizeOrder", "append_row", order.ID, err)
	}

	label := gateways.Label{
		Code:     info.Code(),
		Name:     info.Description,
		Quantity: order.Quantity,
		Supplier: res.Supplier,
		Date:     time.Now().Format("02/01/2006"),
	}
	if err := e.step(ctx, func(c context.Context) error {
		return e.gw.Printer.PrintLabel(c, label)
	}); err != nil {
		res.PrintWarning = err.Error()
		config.LogWarn(e.logger, "workflow", "finalizeOrder", order.ID, "label print failed: "+err.Error())
	}

	res.FinishedAt = time.Now()
	return res
}

// step runs one gateway call under the per-call timeout. A cancelled trace
// surfaces as ErrOrderCancelled so the pipeline stops at the step boundary;
// a timed-out call comes back as the gateway's own error and is treated like
// any other gateway failure.
func (e *Engine) step(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Err() != nil {
		return ErrOrderCancelled
	}
	callCtx, cancel := context.WithTimeout(ctx, e.settings.GatewayTimeout)
	defer cancel()
	err := fn(callCtx)
	if ctx.Err() != nil {
		return ErrOrderCancelled
	}
	return err
}

func (e *Engine) register(ctx context.Context, info *models.ProductInfo) error {
	return e.step(ctx, func(c context.Context) error {
		return e.gw.Registry.Register(c, info)
	})
}

func (e *Engine) checkWallet(ctx context.Context, code string) ([]models.SupplierQuote, error) {
	var quotes []models.SupplierQuote
	err := e.step(ctx, func(c context.Context) error {
		var err error
		quotes, err = e.gw.ERP.CheckWalletResult(c, e.settings.WalletType, code)
		return err
	})
	return quotes, err
}

func (e *Engine) fail(order models.Order, reason ReasonCode, msg string) OrderResult {
	e.logger.WithFields(logrus.Fields{
		"module":  "workflow",
		"orderId": order.ID,
		"reason":  reason,
	}).Warn(msg)
	return OrderResult{
		Order:      order,
		Status:     models.OrderStatusFailed,
		Reason:     reason,
		Message:    msg,
		FinishedAt: time.Now(),
	}
}

func (e *Engine) failFromErr(order models.Order, reason ReasonCode, err error) OrderResult {
	if errors.Is(err, ErrOrderCancelled) {
		return e.cancelResult(order)
	}
	return e.fail(order, reason, err.Error())
}

func (e *Engine) cancelResult(order models.Order) OrderResult {
	return OrderResult{
		Order:      order,
		Status:     models.OrderStatusCancelled,
		Reason:     ReasonCancelled,
		Message:    "trace cancelled before the order reached a terminal state",
		FinishedAt: time.Now(),
	}
}

// persistTrace writes the durable audit row for a terminal trace,
// best-effort: the in-memory registry stays authoritative.
func (e *Engine) persistTrace(t Trace) {
	db := config.GetDB()
	if db == nil {
		return
	}
	detail, err := json.Marshal(t)
	if err != nil {
		config.LogError(e.logger, "workflow", "persistTrace", "json.Marshal", t.ID, err)
		detail = []byte("{}")
	}
	record := models.TraceRecord{
		ID:             t.ID,
		Status:         string(t.Status),
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		OrderCount:     len(t.Orders),
		ProcessedCount: len(t.ProcessedOrders),
		FailedCount:    len(t.FailedOrders),
		HumanCount:     len(t.HumanIntervention),
		CancelledCount: len(t.CancelledOrders),
		Error:          t.Error,
		DetailJSON:     string(detail),
	}
	if err := db.Create(&record).Error; err != nil {
		config.LogError(e.logger, "workflow", "persistTrace", "db.Create", t.ID, err)
	}
}

package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/farmadata/autofarma_backend/models"
)

// TraceRegistry tracks in-flight traces and a bounded FIFO history of
// terminal ones. Every mutation from the concurrently executing traces goes
// through the single registry mutex; snapshots are deep copies so callers
// never observe a trace mid-mutation.
type TraceRegistry struct {
	mu         sync.Mutex
	active     map[string]*Trace
	cancels    map[string]context.CancelFunc
	history    []*Trace
	historyCap int
}

func NewTraceRegistry(historyCap int) *TraceRegistry {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &TraceRegistry{
		active:     map[string]*Trace{},
		cancels:    map[string]context.CancelFunc{},
		historyCap: historyCap,
	}
}

func (r *TraceRegistry) Create(id string, cfg TraceConfig, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = &Trace{
		ID:        id,
		Status:    TraceStatusInProgress,
		StartTime: time.Now(),
		Config:    cfg,
	}
	r.cancels[id] = cancel
}

func (r *TraceRegistry) SetOrders(id string, orders []models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.active[id]; ok {
		t.Orders = append([]models.Order(nil), orders...)
	}
}

// RecordResult buckets one terminal order outcome. The buckets are mutually
// exclusive: each result lands in exactly one slice based on its status.
func (r *TraceRegistry) RecordResult(id string, res OrderResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[id]
	if !ok {
		return
	}
	switch res.Status {
	case models.OrderStatusCompleted:
		t.ProcessedOrders = append(t.ProcessedOrders, res)
	case models.OrderStatusHumanIntervention:
		t.HumanIntervention = append(t.HumanIntervention, res)
	case models.OrderStatusCancelled:
		t.CancelledOrders = append(t.CancelledOrders, res)
	default:
		t.FailedOrders = append(t.FailedOrders, res)
	}
}

// Finalize moves a trace to a terminal status and into the bounded history.
// The returned snapshot is already detached from registry state.
func (r *TraceRegistry) Finalize(id string, status TraceStatus, errMsg string) (Trace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[id]
	if !ok {
		return Trace{}, false
	}
	now := time.Now()
	t.Status = status
	t.EndTime = &now
	if errMsg != "" {
		t.Error = errMsg
	}

	delete(r.active, id)
	delete(r.cancels, id)

	r.history = append(r.history, t)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
	return copyTrace(t), true
}

// Cancel fires the trace's cancel func. The engine notices at the next order
// or step boundary; the trace stays active until it finalizes itself.
func (r *TraceRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Snapshot returns a copy of the trace, looking at active traces first and
// the terminal history after.
func (r *TraceRegistry) Snapshot(id string) (Trace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.active[id]; ok {
		return copyTrace(t), true
	}
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].ID == id {
			return copyTrace(r.history[i]), true
		}
	}
	return Trace{}, false
}

func (r *TraceRegistry) ActiveSnapshots() []Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trace, 0, len(r.active))
	for _, t := range r.active {
		out = append(out, copyTrace(t))
	}
	return out
}

func (r *TraceRegistry) HistorySnapshots() []Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trace, 0, len(r.history))
	for _, t := range r.history {
		out = append(out, copyTrace(t))
	}
	return out
}

func copyTrace(t *Trace) Trace {
	c := *t
	c.Orders = append([]models.Order(nil), t.Orders...)
	c.ProcessedOrders = append([]OrderResult(nil), t.ProcessedOrders...)
	c.FailedOrders = append([]OrderResult(nil), t.FailedOrders...)
	c.HumanIntervention = append([]OrderResult(nil), t.HumanIntervention...)
	c.CancelledOrders = append([]OrderResult(nil), t.CancelledOrders...)
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	return c
}

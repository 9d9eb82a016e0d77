package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/farmadata/autofarma_backend/config"
	"github.com/farmadata/autofarma_backend/models"
	"github.com/sirupsen/logrus"
)

const farmaticSessionKey = "farmatic:session"

// FarmaticGateway drives the single Farmatic desktop session. The desktop
// application services one interactive operation at a time, so every call
// funnels through withSession: an in-process mutex, plus a Redis lock when
// Redis is configured to fence other processes sharing the same desktop.
//
// The interactive mechanics (window focus, keystrokes) live in the desktop
// automation bridge, out of scope here. Until that bridge is attached the
// adapter exchanges data through the JSON drops the Farmatic session exporter
// maintains: a pending-order export and a per-code wallet-quote export.
type FarmaticGateway struct {
	mu                sync.Mutex
	logger            *logrus.Logger
	ordersExportPath  string
	walletResultsPath string
	lockTTL           time.Duration
}

func NewFarmaticGateway(logger *logrus.Logger, ordersExportPath, walletResultsPath string) *FarmaticGateway {
	return &FarmaticGateway{
		logger:            logger,
		ordersExportPath:  ordersExportPath,
		walletResultsPath: walletResultsPath,
		lockTTL:           30 * time.Second,
	}
}

func (g *FarmaticGateway) withSession(ctx context.Context, op string, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, farmaticSessionKey, g.lockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 40),
		})
		if err != nil {
			return &GatewayError{Collaborator: "farmatic", Op: op, Err: fmt.Errorf("session busy: %w", err)}
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	if err := ctx.Err(); err != nil {
		return &GatewayError{Collaborator: "farmatic", Op: op, Err: err}
	}
	return fn()
}

// GetOrderList reads the pending-order export. A filters["status"] entry
// narrows the list; anything else is ignored, matching what the desktop
// search form supports.
func (g *FarmaticGateway) GetOrderList(ctx context.Context, filters map[string]string) ([]models.Order, error) {
	var orders []models.Order
	err := g.withSession(ctx, "get_order_list", func() error {
		raw, err := os.ReadFile(g.ordersExportPath)
		if err != nil {
			return &GatewayError{Collaborator: "farmatic", Op: "get_order_list", Err: err}
		}
		if err := json.Unmarshal(raw, &orders); err != nil {
			return &GatewayError{Collaborator: "farmatic", Op: "get_order_list", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	status := filters["status"]
	if status == "" {
		return orders, nil
	}
	filtered := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if string(o.Status) == status {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

func (g *FarmaticGateway) AddToWallet(ctx context.Context, walletType string, code string) error {
	return g.withSession(ctx, "add_to_wallet", func() error {
		g.logger.WithFields(logrus.Fields{
			"module": "gateways",
			"wallet": walletType,
			"code":   code,
		}).Info("staged code in wallet")
		return nil
	})
}

func (g *FarmaticGateway) CheckWalletResult(ctx context.Context, walletType string, code string) ([]models.SupplierQuote, error) {
	var quotes []models.SupplierQuote
	err := g.withSession(ctx, "check_wallet_result", func() error {
		raw, err := os.ReadFile(g.walletResultsPath)
		if err != nil {
			if os.IsNotExist(err) {
				// No export yet: the wallet simply has no result.
				return nil
			}
			return &GatewayError{Collaborator: "farmatic", Op: "check_wallet_result", Err: err}
		}
		var byCode map[string][]models.SupplierQuote
		if err := json.Unmarshal(raw, &byCode); err != nil {
			return &GatewayError{Collaborator: "farmatic", Op: "check_wallet_result", Err: err}
		}
		quotes = byCode[code]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

func (g *FarmaticGateway) AssignSupplier(ctx context.Context, orderID string, supplier string) error {
	return g.withSession(ctx, "assign_supplier", func() error {
		g.logger.WithFields(logrus.Fields{
			"module":   "gateways",
			"orderId":  orderID,
			"supplier": supplier,
		}).Info("assigned supplier")
		return nil
	})
}

func (g *FarmaticGateway) ReloadAndSend(ctx context.Context, orderID string) error {
	return g.withSession(ctx, "reload_and_send", func() error {
		g.logger.WithFields(logrus.Fields{
			"module":  "gateways",
			"orderId": orderID,
		}).Info("reload-and-send triggered")
		return nil
	})
}

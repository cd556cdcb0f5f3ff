package main

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"dispatchbox/internal/registry"
)

// registerDemoHandlers wires the three example event_type handlers the
// dispatcher ships as a wiring demonstration, not as library code: an
// operator replaces these with their own registrations before deploying.
func registerDemoHandlers(reg *registry.Registry, logger *zap.Logger) {
	reg.Register("order.created", sendEmailHandler(logger))
	reg.Register("order.created.crm", pushToCRMHandler(logger))
	reg.Register("order.created.analytics", recordAnalyticsHandler(logger))
}

type orderCreatedPayload struct {
	CustomerID string `json:"customerId"`
	OrderID    string `json:"orderId"`
}

func sendEmailHandler(logger *zap.Logger) registry.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p orderCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := sleep(ctx, 200*time.Millisecond); err != nil {
			return err
		}
		logger.Info("email sent", zap.String("customer_id", p.CustomerID))
		return nil
	}
}

func pushToCRMHandler(logger *zap.Logger) registry.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p orderCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
		logger.Info("CRM updated", zap.String("order_id", p.OrderID))
		return nil
	}
}

func recordAnalyticsHandler(logger *zap.Logger) registry.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p orderCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		logger.Info("analytics recorded", zap.String("order_id", p.OrderID))
		return nil
	}
}

// sleep is a context-aware stand-in for the original handlers' blocking
// I/O delay, so a handler timeout can still cancel it.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

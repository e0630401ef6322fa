package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
	"github.com/orvio-ai/be-order-verification/internal/tenancy"
)

// OrderLifecycleService is the sole writer of order status. Every other
// component mutates orders only through Transition.
type OrderLifecycleService struct {
	orders OrderStore
	audit  AuditLog
	clock  clock.Clock
	log    *logger.Logger
}

// NewOrderLifecycleService creates a new order lifecycle service.
func NewOrderLifecycleService(orders OrderStore, audit AuditLog, clk clock.Clock, log *logger.Logger) *OrderLifecycleService {
	return &OrderLifecycleService{
		orders: orders,
		audit:  audit,
		clock:  clk,
		log:    log,
	}
}

// CreateOrderRequest carries the fields of a vendor-created order.
type CreateOrderRequest struct {
	TenantID     string
	VendorID     string
	BuyerID      string
	BuyerContact string
	Amount       int64
	Currency     string
	Notes        *string
}

// CreateOrder creates an order in pending status.
func (s *OrderLifecycleService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error) {
	if req.TenantID == "" {
		return nil, errors.InvalidInput("tenant_id", "tenant is required")
	}
	if req.VendorID == "" || req.BuyerID == "" {
		return nil, errors.InvalidInput("vendor_id", "vendor and buyer are required")
	}
	if req.Amount <= 0 {
		return nil, errors.InvalidInput("amount", "amount must be positive")
	}
	if len(req.Currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	order := &domain.Order{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		VendorID:     req.VendorID,
		BuyerID:      req.BuyerID,
		BuyerContact: req.BuyerContact,
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
		Status:       domain.OrderStatusPending,
		Notes:        req.Notes,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("tenant_id", order.TenantID).
		Str("vendor_id", order.VendorID).
		Int64("amount", order.Amount).
		Msg("Order created")

	return order, nil
}

// GetOrder retrieves an order after the tenancy check.
func (s *OrderLifecycleService) GetOrder(ctx context.Context, actorTenant, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID, actorTenant)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Authorize(actorTenant, order.TenantID); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders lists a tenant's orders with optional status filter.
func (s *OrderLifecycleService) ListOrders(ctx context.Context, actorTenant string, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, errors.InvalidInput("status", "unknown order status")
	}
	offset := (page - 1) * pageSize
	return s.orders.List(ctx, actorTenant, status, pageSize, offset)
}

// GetAuditTrail returns the order's decision history, oldest first. The
// order lookup doubles as the tenancy check.
func (s *OrderLifecycleService) GetAuditTrail(ctx context.Context, actorTenant, orderID string) ([]*domain.AuditEntry, error) {
	if _, err := s.GetOrder(ctx, actorTenant, orderID); err != nil {
		return nil, err
	}
	return s.audit.GetByOrderID(ctx, orderID, actorTenant)
}

// ConfirmOrder advances a pending order to confirmed.
func (s *OrderLifecycleService) ConfirmOrder(ctx context.Context, actorTenant, orderID, actor string) (*domain.Order, error) {
	return s.Transition(ctx, actorTenant, orderID, domain.OrderStatusPending, domain.OrderStatusConfirmed, actor, nil)
}

// Transition conditionally advances an order along a legal edge. It rejects
// with an invalid-state error when the edge is not in the transition table or
// when the order's stored status no longer matches expected at write time —
// the optimistic guard that makes concurrent decision writes first-writer-wins.
func (s *OrderLifecycleService) Transition(ctx context.Context, actorTenant, orderID string, expected, next domain.OrderStatus, actor string, notes *string) (*domain.Order, error) {
	if !expected.Valid() || !next.Valid() {
		return nil, errors.InvalidInput("status", "unknown order status")
	}
	if !expected.CanTransitionTo(next) {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order cannot move from %s to %s", expected, next)
	}

	ok, err := s.orders.UpdateStatusIf(ctx, orderID, actorTenant, expected, next, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		// No row matched: the order is missing or moved underneath us.
		order, err := s.orders.GetByID(ctx, orderID, actorTenant)
		if err != nil {
			return nil, err
		}
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order status is %s, expected %s", order.Status, expected)
	}

	before := string(expected)
	after := string(next)
	if err := s.audit.Append(ctx, &domain.AuditEntry{
		ID:           uuid.NewString(),
		TenantID:     actorTenant,
		OrderID:      orderID,
		Action:       "order_transition",
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("tenant_id", actorTenant).
		Str("from", before).
		Str("to", after).
		Str("actor", actor).
		Msg("Order status advanced")

	return s.orders.GetByID(ctx, orderID, actorTenant)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
)

func newLifecycleFixture(t *testing.T) (*OrderLifecycleService, *fakeOrderStore, *fakeAuditLog) {
	t.Helper()
	orders := newFakeOrderStore()
	audit := &fakeAuditLog{}
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewOrderLifecycleService(orders, audit, clk, logger.Nop()), orders, audit
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"missing tenant", CreateOrderRequest{VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB"}},
		{"missing vendor", CreateOrderRequest{TenantID: "t1", BuyerID: "b1", Amount: 100, Currency: "THB"}},
		{"zero amount", CreateOrderRequest{TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 0, Currency: "THB"}},
		{"negative amount", CreateOrderRequest{TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: -5, Currency: "THB"}},
		{"bad currency", CreateOrderRequest{TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "BAHT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, &tt.req)
			assert.True(t, errors.Is(err, errors.ErrCodeValidation))
		})
	}
}

func TestCreateOrderStartsPending(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1",
		BuyerContact: "+66812345678", Amount: 25_000, Currency: "thb",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "THB", order.Currency)
	assert.NotEmpty(t, order.ID)
}

func TestConfirmOrder(t *testing.T) {
	svc, orders, audit := newLifecycleFixture(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)

	order, err := svc.ConfirmOrder(ctx, "t1", created.ID, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, domain.OrderStatusConfirmed, orders.orders[created.ID].Status)
	assert.Equal(t, []string{"order_transition"}, audit.actions())

	// Confirming twice fails: the stored status no longer matches pending.
	_, err = svc.ConfirmOrder(ctx, "t1", created.ID, "v1")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)

	// pending→verified is not in the transition table.
	_, err = svc.Transition(ctx, "t1", created.ID,
		domain.OrderStatusPending, domain.OrderStatusVerified, "v1", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
}

func TestTransitionExpectedStatusMismatch(t *testing.T) {
	svc, orders, _ := newLifecycleFixture(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)
	orders.orders[created.ID].Status = domain.OrderStatusPaid

	// The edge is legal but the stored status moved underneath the caller.
	_, err = svc.Transition(ctx, "t1", created.ID,
		domain.OrderStatusPending, domain.OrderStatusConfirmed, "v1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
	assert.Contains(t, err.Error(), "order status is paid")
}

func TestGetOrderTenantScoped(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)

	// Another tenant sees not-found, not forbidden: the row's existence
	// is itself tenant-scoped information.
	_, err = svc.GetOrder(ctx, "t2", created.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	order, err := svc.GetOrder(ctx, "t1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, order.ID)
}

func TestGetAuditTrail(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)
	_, err = svc.ConfirmOrder(ctx, "t1", created.ID, "v1")
	require.NoError(t, err)

	entries, err := svc.GetAuditTrail(ctx, "t1", created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "order_transition", entries[0].Action)
	assert.Equal(t, "v1", entries[0].PerformedBy)

	_, err = svc.GetAuditTrail(ctx, "t2", created.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateOrder(ctx, &CreateOrderRequest{
			TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
		})
		require.NoError(t, err)
	}
	confirmed, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		TenantID: "t1", VendorID: "v1", BuyerID: "b1", Amount: 100, Currency: "THB",
	})
	require.NoError(t, err)
	_, err = svc.ConfirmOrder(ctx, "t1", confirmed.ID, "v1")
	require.NoError(t, err)

	status := domain.OrderStatusPending
	orders, total, err := svc.ListOrders(ctx, "t1", &status, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 3)

	bad := domain.OrderStatus("shipped")
	_, _, err = svc.ListOrders(ctx, "t1", &bad, 1, 50)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// OrderRepository handles order persistence. Status writes go through
// UpdateStatusIf exclusively, which carries the expected-current-status guard.
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, tenant_id, vendor_id, buyer_id, buyer_contact,
		                    amount, currency, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::order_status, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		order.ID,
		order.TenantID,
		order.VendorID,
		order.BuyerID,
		order.BuyerContact,
		order.Amount,
		order.Currency,
		order.Status,
		order.Notes,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create order")
	}
	return nil
}

// GetByID retrieves an order scoped to a tenant.
func (r *OrderRepository) GetByID(ctx context.Context, id, tenantID string) (*domain.Order, error) {
	query := `
		SELECT id, tenant_id, vendor_id, buyer_id, buyer_contact,
		       amount, currency, status, receipt_id, notes,
		       created_at, updated_at
		FROM orders
		WHERE id = $1 AND tenant_id = $2
	`

	order, err := scanOrder(r.db.QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("order", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order")
	}
	return order, nil
}

// List retrieves orders for a tenant with optional status filter and paging.
func (r *OrderRepository) List(ctx context.Context, tenantID string, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	query := `
		SELECT id, tenant_id, vendor_id, buyer_id, buyer_contact,
		       amount, currency, status, receipt_id, notes,
		       created_at, updated_at
		FROM orders
		WHERE tenant_id = $1
	`
	countQuery := `SELECT COUNT(*) FROM orders WHERE tenant_id = $1`

	args := []any{tenantID}
	if status != nil {
		query += " AND status = $2::order_status"
		countQuery += " AND status = $2::order_status"
		args = append(args, *status)
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count orders")
	}

	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list orders")
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order")
		}
		orders = append(orders, order)
	}

	return orders, total, nil
}

// UpdateStatusIf conditionally advances the order status. It writes only when
// the stored status still equals expected, and reports whether a row matched.
// A false return with a nil error means the order either moved underneath the
// caller or does not exist; the caller re-reads to tell the two apart.
func (r *OrderRepository) UpdateStatusIf(ctx context.Context, id, tenantID string, expected, next domain.OrderStatus, notes *string) (bool, error) {
	query := `
		UPDATE orders
		SET status     = $4::order_status,
		    notes      = COALESCE($5, notes),
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = $3::order_status
	`

	tag, err := r.db.Exec(ctx, query, id, tenantID, expected, next, notes)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to update order status")
	}
	return tag.RowsAffected() == 1, nil
}

// AttachReceipt records the receipt reference on an order.
func (r *OrderRepository) AttachReceipt(ctx context.Context, orderID, tenantID, receiptID string) error {
	query := `
		UPDATE orders
		SET receipt_id = $3,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, orderID, tenantID, receiptID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("order", orderID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to attach receipt to order")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.TenantID,
		&order.VendorID,
		&order.BuyerID,
		&order.BuyerContact,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.ReceiptID,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

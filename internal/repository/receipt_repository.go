package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// ReceiptRepository handles receipt persistence. A receipt resolves exactly
// once: ResolveIf refuses to touch a row that has already left pending_review.
type ReceiptRepository struct {
	db *database.DB
}

// NewReceiptRepository creates a new receipt repository.
func NewReceiptRepository(db *database.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create inserts a receipt in pending_review with its extractor metadata.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *domain.Receipt) error {
	var ocrJSON []byte
	if receipt.OCRMetadata != nil {
		var err error
		ocrJSON, err = json.Marshal(receipt.OCRMetadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal ocr metadata")
		}
	}

	query := `
		INSERT INTO receipts (id, tenant_id, order_id, buyer_id, reviewer_id,
		                      file_ref, status, ocr_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7::receipt_status, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		receipt.ID,
		receipt.TenantID,
		receipt.OrderID,
		receipt.BuyerID,
		receipt.ReviewerID,
		receipt.FileRef,
		receipt.Status,
		ocrJSON,
	).Scan(&receipt.CreatedAt, &receipt.UpdatedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create receipt")
	}
	return nil
}

// GetByID retrieves a receipt scoped to a tenant.
func (r *ReceiptRepository) GetByID(ctx context.Context, id, tenantID string) (*domain.Receipt, error) {
	query := `
		SELECT id, tenant_id, order_id, buyer_id, reviewer_id,
		       file_ref, status, reviewer_notes, reviewed_at, ocr_metadata,
		       created_at, updated_at
		FROM receipts
		WHERE id = $1 AND tenant_id = $2
	`

	receipt, err := scanReceipt(r.db.QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("receipt", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get receipt")
	}
	return receipt, nil
}

// GetByOrderID retrieves the receipt attached to an order, or nil when the
// order has none yet.
func (r *ReceiptRepository) GetByOrderID(ctx context.Context, orderID, tenantID string) (*domain.Receipt, error) {
	query := `
		SELECT id, tenant_id, order_id, buyer_id, reviewer_id,
		       file_ref, status, reviewer_notes, reviewed_at, ocr_metadata,
		       created_at, updated_at
		FROM receipts
		WHERE order_id = $1 AND tenant_id = $2
	`

	receipt, err := scanReceipt(r.db.QueryRow(ctx, query, orderID, tenantID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get receipt by order")
	}
	return receipt, nil
}

// ResolveIf moves a receipt out of pending_review, conditional on it still
// being pending. Reports whether a row matched.
func (r *ReceiptRepository) ResolveIf(ctx context.Context, id, tenantID string, next domain.ReceiptStatus, reviewerNotes *string, reviewedAt time.Time) (bool, error) {
	query := `
		UPDATE receipts
		SET status         = $3::receipt_status,
		    reviewer_notes = $4,
		    reviewed_at    = $5,
		    updated_at     = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending_review'::receipt_status
	`

	tag, err := r.db.Exec(ctx, query, id, tenantID, next, reviewerNotes, reviewedAt)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve receipt")
	}
	return tag.RowsAffected() == 1, nil
}

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	receipt := &domain.Receipt{}
	var ocrJSON []byte
	err := row.Scan(
		&receipt.ID,
		&receipt.TenantID,
		&receipt.OrderID,
		&receipt.BuyerID,
		&receipt.ReviewerID,
		&receipt.FileRef,
		&receipt.Status,
		&receipt.ReviewerNotes,
		&receipt.ReviewedAt,
		&ocrJSON,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(ocrJSON) > 0 {
		if err := json.Unmarshal(ocrJSON, &receipt.OCRMetadata); err != nil {
			return nil, err
		}
	}
	return receipt, nil
}

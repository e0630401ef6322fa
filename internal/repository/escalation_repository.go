package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// EscalationRepository manages escalation records. Terminal writes are
// conditional on the row still being pending, so an escalation is decided
// exactly once.
type EscalationRepository struct {
	db *database.DB
}

// NewEscalationRepository creates a new escalation repository.
func NewEscalationRepository(db *database.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create inserts a pending escalation.
func (r *EscalationRepository) Create(ctx context.Context, esc *domain.Escalation) error {
	query := `
		INSERT INTO escalations (id, tenant_id, order_id, receipt_id, vendor_id,
		                         buyer_id, buyer_contact, amount, reason, status,
		                         expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::escalation_reason,
		        $10::escalation_status, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		esc.ID,
		esc.TenantID,
		esc.OrderID,
		esc.ReceiptID,
		esc.VendorID,
		esc.BuyerID,
		esc.BuyerContact,
		esc.Amount,
		esc.Reason,
		esc.Status,
		esc.ExpiresAt,
	).Scan(&esc.CreatedAt, &esc.UpdatedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create escalation")
	}
	return nil
}

// GetByID retrieves an escalation by its primary key. Tenancy is checked by
// the caller against the returned record.
func (r *EscalationRepository) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	query := escalationSelect + ` WHERE id = $1`

	esc, err := scanEscalation(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("escalation", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get escalation")
	}
	return esc, nil
}

// ListPending returns pending escalations for a tenant, oldest first.
func (r *EscalationRepository) ListPending(ctx context.Context, tenantID string) ([]*domain.Escalation, error) {
	query := escalationSelect + `
		WHERE tenant_id = $1 AND status = 'pending'::escalation_status
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending escalations")
	}
	defer rows.Close()

	escalations := make([]*domain.Escalation, 0)
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan escalation")
		}
		escalations = append(escalations, esc)
	}
	return escalations, nil
}

// DecideIf writes a terminal status, conditional on the escalation still
// being pending. Reports whether a row matched.
func (r *EscalationRepository) DecideIf(ctx context.Context, id string, next domain.EscalationStatus, decidedBy string, notes *string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE escalations
		SET status         = $2::escalation_status,
		    decided_by     = $3,
		    decision_notes = $4,
		    decided_at     = $5,
		    updated_at     = NOW()
		WHERE id = $1 AND status = 'pending'::escalation_status
	`

	tag, err := r.db.Exec(ctx, query, id, next, decidedBy, notes, decidedAt)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to decide escalation")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired flips a pending escalation to expired. Losing the race to a
// concurrent decision is fine, so the zero-row case is not an error.
func (r *EscalationRepository) MarkExpired(ctx context.Context, id string) error {
	query := `
		UPDATE escalations
		SET status     = 'expired'::escalation_status,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'::escalation_status
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to expire escalation")
	}
	return nil
}

const escalationSelect = `
	SELECT id, tenant_id, order_id, receipt_id, vendor_id,
	       buyer_id, buyer_contact, amount, reason, status,
	       decision_notes, decided_by, decided_at, expires_at,
	       created_at, updated_at
	FROM escalations`

func scanEscalation(row rowScanner) (*domain.Escalation, error) {
	esc := &domain.Escalation{}
	err := row.Scan(
		&esc.ID,
		&esc.TenantID,
		&esc.OrderID,
		&esc.ReceiptID,
		&esc.VendorID,
		&esc.BuyerID,
		&esc.BuyerContact,
		&esc.Amount,
		&esc.Reason,
		&esc.Status,
		&esc.DecisionNotes,
		&esc.DecidedBy,
		&esc.DecidedAt,
		&esc.ExpiresAt,
		&esc.CreatedAt,
		&esc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return esc, nil
}

package repository

import (
	"context"
	"encoding/json"

	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// AuditRepository appends and reads immutable decision audit entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO decision_audit_log (id, tenant_id, order_id, action,
		                                performed_by, status_before, status_after,
		                                metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.OrderID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.PerformedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByOrderID returns the full audit trail for an order, oldest first.
func (r *AuditRepository) GetByOrderID(ctx context.Context, orderID, tenantID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, order_id, action, performed_by,
		       status_before, status_after, metadata, performed_at
		FROM decision_audit_log
		WHERE order_id = $1 AND tenant_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, orderID, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		entry := &domain.AuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.OrderID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
			&entry.PerformedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

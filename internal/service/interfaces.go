package service

import (
	"context"
	"time"

	"github.com/orvio-ai/be-order-verification/internal/domain"
)

// Store interfaces are satisfied by the pgx repositories and by in-memory
// fakes in tests. The durable store only needs get-by-id, conditional
// updates and tenant-scoped listing; nothing here assumes Postgres.

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id, tenantID string) (*domain.Order, error)
	List(ctx context.Context, tenantID string, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error)
	// UpdateStatusIf writes only when the stored status still equals expected
	// and reports whether a row matched.
	UpdateStatusIf(ctx context.Context, id, tenantID string, expected, next domain.OrderStatus, notes *string) (bool, error)
	AttachReceipt(ctx context.Context, orderID, tenantID, receiptID string) error
}

// ReceiptStore persists receipts.
type ReceiptStore interface {
	Create(ctx context.Context, receipt *domain.Receipt) error
	GetByID(ctx context.Context, id, tenantID string) (*domain.Receipt, error)
	GetByOrderID(ctx context.Context, orderID, tenantID string) (*domain.Receipt, error)
	// ResolveIf moves a receipt out of pending_review, conditional on it
	// still being pending.
	ResolveIf(ctx context.Context, id, tenantID string, next domain.ReceiptStatus, reviewerNotes *string, reviewedAt time.Time) (bool, error)
}

// EscalationStore persists escalations.
type EscalationStore interface {
	Create(ctx context.Context, esc *domain.Escalation) error
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	ListPending(ctx context.Context, tenantID string) ([]*domain.Escalation, error)
	// DecideIf writes a terminal status, conditional on pending.
	DecideIf(ctx context.Context, id string, next domain.EscalationStatus, decidedBy string, notes *string, decidedAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string) error
}

// OTPStore persists one-time passcode credentials. GetForUpdate must lock
// the row for the duration of the transaction opened by WithTx.
type OTPStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Upsert(ctx context.Context, cred *domain.OTPCredential) error
	GetForUpdate(ctx context.Context, subject, role string) (*domain.OTPCredential, error)
	Delete(ctx context.Context, subject, role string) error
	RecordFailure(ctx context.Context, cred *domain.OTPCredential) error
}

// AuditLog appends and reads immutable decision audit entries.
type AuditLog interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	GetByOrderID(ctx context.Context, orderID, tenantID string) ([]*domain.AuditEntry, error)
}

// Notifier dispatches outbound notifications. Delivery is best-effort:
// callers log failures and never let them affect a committed decision.
type Notifier interface {
	SendBuyerNotification(ctx context.Context, tenantID, buyerRef, message string) error
	SendResolutionNotification(ctx context.Context, tenantID, ceoRef, escalationID, orderID string, decision domain.Decision, amount int64) error
	SendDecisionCode(ctx context.Context, tenantID, subjectRef, code string, expiresAt time.Time) error
}

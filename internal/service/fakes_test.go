package service

import (
	"context"
	"time"

	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// In-memory store fakes. They mirror the repository contracts: scoped lookups
// return not-found for a missing or cross-tenant row, conditional writes
// report whether a row matched instead of erroring.

type fakeOrderStore struct {
	orders map[string]*domain.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*domain.Order)}
}

func (f *fakeOrderStore) Create(_ context.Context, order *domain.Order) error {
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id, tenantID string) (*domain.Order, error) {
	order, ok := f.orders[id]
	if !ok || order.TenantID != tenantID {
		return nil, errors.NotFound("order", id)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) List(_ context.Context, tenantID string, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	var matched []*domain.Order
	for _, order := range f.orders {
		if order.TenantID != tenantID {
			continue
		}
		if status != nil && order.Status != *status {
			continue
		}
		cp := *order
		matched = append(matched, &cp)
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (f *fakeOrderStore) UpdateStatusIf(_ context.Context, id, tenantID string, expected, next domain.OrderStatus, notes *string) (bool, error) {
	order, ok := f.orders[id]
	if !ok || order.TenantID != tenantID || order.Status != expected {
		return false, nil
	}
	order.Status = next
	if notes != nil {
		order.Notes = notes
	}
	return true, nil
}

func (f *fakeOrderStore) AttachReceipt(_ context.Context, orderID, tenantID, receiptID string) error {
	order, ok := f.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return errors.NotFound("order", orderID)
	}
	order.ReceiptID = &receiptID
	return nil
}

type fakeReceiptStore struct {
	receipts map[string]*domain.Receipt
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{receipts: make(map[string]*domain.Receipt)}
}

func (f *fakeReceiptStore) Create(_ context.Context, receipt *domain.Receipt) error {
	cp := *receipt
	f.receipts[receipt.ID] = &cp
	return nil
}

func (f *fakeReceiptStore) GetByID(_ context.Context, id, tenantID string) (*domain.Receipt, error) {
	receipt, ok := f.receipts[id]
	if !ok || receipt.TenantID != tenantID {
		return nil, errors.NotFound("receipt", id)
	}
	cp := *receipt
	return &cp, nil
}

func (f *fakeReceiptStore) GetByOrderID(_ context.Context, orderID, tenantID string) (*domain.Receipt, error) {
	for _, receipt := range f.receipts {
		if receipt.OrderID == orderID && receipt.TenantID == tenantID {
			cp := *receipt
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReceiptStore) ResolveIf(_ context.Context, id, tenantID string, next domain.ReceiptStatus, reviewerNotes *string, reviewedAt time.Time) (bool, error) {
	receipt, ok := f.receipts[id]
	if !ok || receipt.TenantID != tenantID || receipt.Status != domain.ReceiptStatusPendingReview {
		return false, nil
	}
	receipt.Status = next
	receipt.ReviewerNotes = reviewerNotes
	receipt.ReviewedAt = &reviewedAt
	return true, nil
}

type fakeEscalationStore struct {
	escalations map[string]*domain.Escalation
}

func newFakeEscalationStore() *fakeEscalationStore {
	return &fakeEscalationStore{escalations: make(map[string]*domain.Escalation)}
}

func (f *fakeEscalationStore) Create(_ context.Context, esc *domain.Escalation) error {
	cp := *esc
	f.escalations[esc.ID] = &cp
	return nil
}

func (f *fakeEscalationStore) GetByID(_ context.Context, id string) (*domain.Escalation, error) {
	esc, ok := f.escalations[id]
	if !ok {
		return nil, errors.NotFound("escalation", id)
	}
	cp := *esc
	return &cp, nil
}

func (f *fakeEscalationStore) ListPending(_ context.Context, tenantID string) ([]*domain.Escalation, error) {
	var pending []*domain.Escalation
	for _, esc := range f.escalations {
		if esc.TenantID == tenantID && esc.Status == domain.EscalationStatusPending {
			cp := *esc
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

func (f *fakeEscalationStore) DecideIf(_ context.Context, id string, next domain.EscalationStatus, decidedBy string, notes *string, decidedAt time.Time) (bool, error) {
	esc, ok := f.escalations[id]
	if !ok || esc.Status != domain.EscalationStatusPending {
		return false, nil
	}
	esc.Status = next
	esc.DecidedBy = &decidedBy
	esc.DecisionNotes = notes
	esc.DecidedAt = &decidedAt
	return true, nil
}

func (f *fakeEscalationStore) MarkExpired(_ context.Context, id string) error {
	if esc, ok := f.escalations[id]; ok && esc.Status == domain.EscalationStatusPending {
		esc.Status = domain.EscalationStatusExpired
	}
	return nil
}

type otpKey struct {
	subject string
	role    string
}

type fakeOTPStore struct {
	creds map[otpKey]*domain.OTPCredential
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{creds: make(map[otpKey]*domain.OTPCredential)}
}

func (f *fakeOTPStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeOTPStore) Upsert(_ context.Context, cred *domain.OTPCredential) error {
	cp := *cred
	cp.FailureCount = 0
	cp.LockedUntil = nil
	f.creds[otpKey{cred.Subject, cred.Role}] = &cp
	return nil
}

func (f *fakeOTPStore) GetForUpdate(_ context.Context, subject, role string) (*domain.OTPCredential, error) {
	cred, ok := f.creds[otpKey{subject, role}]
	if !ok {
		return nil, nil
	}
	cp := *cred
	return &cp, nil
}

func (f *fakeOTPStore) Delete(_ context.Context, subject, role string) error {
	delete(f.creds, otpKey{subject, role})
	return nil
}

func (f *fakeOTPStore) RecordFailure(_ context.Context, cred *domain.OTPCredential) error {
	cp := *cred
	f.creds[otpKey{cred.Subject, cred.Role}] = &cp
	return nil
}

type fakeAuditLog struct {
	entries []*domain.AuditEntry
}

func (f *fakeAuditLog) Append(_ context.Context, entry *domain.AuditEntry) error {
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAuditLog) GetByOrderID(_ context.Context, orderID, tenantID string) ([]*domain.AuditEntry, error) {
	var out []*domain.AuditEntry
	for _, e := range f.entries {
		if e.OrderID == orderID && e.TenantID == tenantID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAuditLog) actions() []string {
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// testClock is a movable clock for exercising TTL and lockout windows.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type sentNotification struct {
	kind      string
	recipient string
	message   string
	code      string
}

// fakeNotifier records sends and can be told to fail, which lets tests prove
// that delivery failures never roll back committed decisions.
type fakeNotifier struct {
	sent     []sentNotification
	failNext bool
}

func (f *fakeNotifier) SendBuyerNotification(_ context.Context, _, buyerRef, message string) error {
	if f.failNext {
		f.failNext = false
		return errors.New(errors.ErrCodeInternal, "delivery unavailable")
	}
	f.sent = append(f.sent, sentNotification{kind: "buyer_update", recipient: buyerRef, message: message})
	return nil
}

func (f *fakeNotifier) SendResolutionNotification(_ context.Context, _, ceoRef, escalationID, _ string, _ domain.Decision, _ int64) error {
	f.sent = append(f.sent, sentNotification{kind: "escalation_resolved", recipient: ceoRef, message: escalationID})
	return nil
}

func (f *fakeNotifier) SendDecisionCode(_ context.Context, _, subjectRef, code string, _ time.Time) error {
	f.sent = append(f.sent, sentNotification{kind: "decision_code", recipient: subjectRef, code: code})
	return nil
}

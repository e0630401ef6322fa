package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orvio-ai/be-order-verification/internal/config"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
)

type escalationFixture struct {
	svc         *EscalationService
	otp         *OTPService
	orders      *fakeOrderStore
	escalations *fakeEscalationStore
	otpStore    *fakeOTPStore
	audit       *fakeAuditLog
	notifier    *fakeNotifier
	clock       *testClock
}

func newEscalationFixture(t *testing.T) *escalationFixture {
	t.Helper()
	f := &escalationFixture{
		orders:      newFakeOrderStore(),
		escalations: newFakeEscalationStore(),
		otpStore:    newFakeOTPStore(),
		audit:       &fakeAuditLog{},
		notifier:    &fakeNotifier{},
		clock:       &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
	log := logger.Nop()
	lifecycle := NewOrderLifecycleService(f.orders, f.audit, f.clock, log)
	f.otp = NewOTPService(f.otpStore, f.clock, config.OTPConfig{
		TTL:          5 * time.Minute,
		CodeLength:   8,
		MaxFailures:  5,
		LockDuration: 15 * time.Minute,
	}, log)
	f.svc = NewEscalationService(f.escalations, lifecycle, f.otp, f.audit, f.notifier, f.clock, log)
	return f
}

// seedEscalation stores an escalated order with a pending escalation that
// expires 48h out.
func (f *escalationFixture) seedEscalation(t *testing.T, id, orderID string) *domain.Escalation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.orders.Create(ctx, &domain.Order{
		ID: orderID, TenantID: "t1", VendorID: "vendor-1", BuyerID: "buyer-1",
		BuyerContact: "+66812345678", Amount: 2_500_000, Currency: "THB",
		Status: domain.OrderStatusEscalated,
	}))
	esc := &domain.Escalation{
		ID: id, TenantID: "t1", OrderID: orderID, ReceiptID: "receipt-" + orderID,
		VendorID: "vendor-1", BuyerID: "buyer-1", BuyerContact: "+66812345678",
		Amount: 2_500_000, Reason: domain.EscalationReasonHighValue,
		Status:    domain.EscalationStatusPending,
		CreatedAt: f.clock.now,
		ExpiresAt: f.clock.now.Add(48 * time.Hour),
	}
	require.NoError(t, f.escalations.Create(ctx, esc))
	return esc
}

func (f *escalationFixture) issueCode(t *testing.T, ceoID string) string {
	t.Helper()
	code, err := f.otp.Issue(context.Background(), ceoID, ceoRole)
	require.NoError(t, err)
	return code
}

func TestDecideApprove(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	code := f.issueCode(t, "ceo-1")

	outcome, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove, Notes: "verified with the bank",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApprove, outcome.Decision)
	assert.Equal(t, domain.OrderStatusApproved, outcome.OrderStatus)
	assert.True(t, outcome.BuyerNotified)

	esc := f.escalations.escalations["esc-1"]
	assert.Equal(t, domain.EscalationStatusApproved, esc.Status)
	require.NotNil(t, esc.DecidedBy)
	assert.Equal(t, "ceo-1", *esc.DecidedBy)
	require.NotNil(t, esc.DecisionNotes)
	assert.Equal(t, "verified with the bank", *esc.DecisionNotes)

	assert.Equal(t, domain.OrderStatusApproved, f.orders.orders["order-1"].Status)
	assert.Empty(t, f.otpStore.creds, "code is destroyed with the decision")
	assert.Contains(t, f.audit.actions(), "escalation_decided")

	kinds := make([]string, 0, len(f.notifier.sent))
	for _, n := range f.notifier.sent {
		kinds = append(kinds, n.kind)
	}
	assert.Equal(t, []string{"buyer_update", "escalation_resolved"}, kinds)
}

func TestDecideReject(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	code := f.issueCode(t, "ceo-1")

	outcome, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionReject, Notes: "slip is forged",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, outcome.OrderStatus)
	assert.Equal(t, domain.EscalationStatusRejected, f.escalations.escalations["esc-1"].Status)
	assert.Equal(t, domain.OrderStatusRejected, f.orders.orders["order-1"].Status)
}

func TestDecideReplayedCodeFails(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	f.seedEscalation(t, "esc-2", "order-2")
	code := f.issueCode(t, "ceo-1")
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	require.NoError(t, err)

	// The same code against a second escalation fails before any state is
	// read; the second escalation stays pending and decidable.
	_, err = f.svc.Decide(ctx, &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-2",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	assert.True(t, errors.Is(err, errors.ErrCodeCredential))
	assert.Equal(t, domain.EscalationStatusPending, f.escalations.escalations["esc-2"].Status)
	assert.Equal(t, domain.OrderStatusEscalated, f.orders.orders["order-2"].Status)

	fresh := f.issueCode(t, "ceo-1")
	_, err = f.svc.Decide(ctx, &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-2",
		OTPCode: fresh, Decision: domain.DecisionApprove,
	})
	require.NoError(t, err)
}

func TestDecideWrongCodeLeavesEscalationUntouched(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	f.issueCode(t, "ceo-1")

	_, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: "WRONGCOD", Decision: domain.DecisionApprove,
	})
	assert.True(t, errors.Is(err, errors.ErrCodeCredential))
	assert.Equal(t, domain.EscalationStatusPending, f.escalations.escalations["esc-1"].Status)
	assert.Equal(t, domain.OrderStatusEscalated, f.orders.orders["order-1"].Status)
	assert.Empty(t, f.audit.actions())
}

func TestDecideAlreadyDecided(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	ctx := context.Background()

	code := f.issueCode(t, "ceo-1")
	_, err := f.svc.Decide(ctx, &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	require.NoError(t, err)

	// A second verdict with a fresh code is refused and changes nothing.
	fresh := f.issueCode(t, "ceo-1")
	_, err = f.svc.Decide(ctx, &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: fresh, Decision: domain.DecisionReject,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
	assert.Contains(t, err.Error(), "escalation already approved")
	assert.Equal(t, domain.EscalationStatusApproved, f.escalations.escalations["esc-1"].Status)
	assert.Equal(t, domain.OrderStatusApproved, f.orders.orders["order-1"].Status)
}

func TestDecideExpiredEscalation(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")

	f.clock.Advance(48 * time.Hour)
	code := f.issueCode(t, "ceo-1")

	_, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))
	assert.Contains(t, err.Error(), "expired")
	assert.Equal(t, domain.EscalationStatusExpired, f.escalations.escalations["esc-1"].Status)
	assert.Equal(t, domain.OrderStatusEscalated, f.orders.orders["order-1"].Status)
}

func TestDecideCrossTenant(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	code := f.issueCode(t, "ceo-2")

	_, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t2", CeoID: "ceo-2", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
	assert.Equal(t, domain.EscalationStatusPending, f.escalations.escalations["esc-1"].Status)
}

func TestDecideInvalidDecision(t *testing.T) {
	f := newEscalationFixture(t)

	_, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: "ABCDEFGH", Decision: domain.Decision("defer"),
	})
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestDecideNotificationFailureReported(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	code := f.issueCode(t, "ceo-1")
	f.notifier.failNext = true

	outcome, err := f.svc.Decide(context.Background(), &DecideRequest{
		TenantID: "t1", CeoID: "ceo-1", EscalationID: "esc-1",
		OTPCode: code, Decision: domain.DecisionApprove,
	})
	require.NoError(t, err)
	assert.False(t, outcome.BuyerNotified)
	// The decision stays committed regardless of delivery.
	assert.Equal(t, domain.EscalationStatusApproved, f.escalations.escalations["esc-1"].Status)
	assert.Equal(t, domain.OrderStatusApproved, f.orders.orders["order-1"].Status)
}

func TestGetPendingMasksBuyerContact(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")

	summaries, err := f.svc.GetPending(context.Background(), "t1", "ceo-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "****5678", summaries[0].BuyerContactMasked)

	other, err := f.svc.GetPending(context.Background(), "t2", "ceo-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetDetailsMasksAndGuards(t *testing.T) {
	f := newEscalationFixture(t)
	f.seedEscalation(t, "esc-1", "order-1")
	ctx := context.Background()

	detail, err := f.svc.GetDetails(ctx, "t1", "ceo-1", "esc-1")
	require.NoError(t, err)
	assert.Equal(t, "****5678", detail.BuyerContactMasked)
	assert.Equal(t, "receipt-order-1", detail.ReceiptID)

	_, err = f.svc.GetDetails(ctx, "t2", "ceo-2", "esc-1")
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestRequestDecisionCodeDeliversOutOfBand(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestDecisionCode(ctx, "t1", "ceo-1"))
	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, "decision_code", sent.kind)
	assert.Equal(t, "ceo-1", sent.recipient)
	require.NotEmpty(t, sent.code)

	// The delivered code is the one that verifies.
	require.NoError(t, f.otp.Verify(ctx, "ceo-1", ceoRole, sent.code))
}

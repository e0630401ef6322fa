package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/config"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
	"github.com/orvio-ai/be-order-verification/internal/tenancy"
)

// ReceiptVerificationService applies a reviewer decision to a receipt and,
// per the auto-escalation policy, either finalizes the order or hands off to
// escalation.
type ReceiptVerificationService struct {
	receipts    ReceiptStore
	orders      OrderStore
	escalations EscalationStore
	lifecycle   *OrderLifecycleService
	audit       AuditLog
	notifier    Notifier
	clock       clock.Clock
	policy      config.PolicyConfig
	log         *logger.Logger
}

// NewReceiptVerificationService creates a new receipt verification service.
func NewReceiptVerificationService(
	receipts ReceiptStore,
	orders OrderStore,
	escalations EscalationStore,
	lifecycle *OrderLifecycleService,
	audit AuditLog,
	notifier Notifier,
	clk clock.Clock,
	policy config.PolicyConfig,
	log *logger.Logger,
) *ReceiptVerificationService {
	return &ReceiptVerificationService{
		receipts:    receipts,
		orders:      orders,
		escalations: escalations,
		lifecycle:   lifecycle,
		audit:       audit,
		notifier:    notifier,
		clock:       clk,
		policy:      policy,
		log:         log,
	}
}

// RegisterReceiptRequest carries the upload-confirmation callback payload.
type RegisterReceiptRequest struct {
	TenantID    string
	OrderID     string
	BuyerID     string
	FileRef     string
	OCRMetadata map[string]any
}

// RegisterReceipt records a confirmed receipt upload: the receipt is created
// in pending_review with its opaque extractor metadata attached, and the
// order advances confirmed→paid. Each order takes exactly one receipt.
func (s *ReceiptVerificationService) RegisterReceipt(ctx context.Context, req *RegisterReceiptRequest) (*domain.Receipt, error) {
	if req.FileRef == "" {
		return nil, errors.InvalidInput("file_ref", "receipt file reference is required")
	}

	order, err := s.orders.GetByID(ctx, req.OrderID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Authorize(req.TenantID, order.TenantID); err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusConfirmed {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"cannot attach a receipt to an order in status %s", order.Status)
	}
	if existing, err := s.receipts.GetByOrderID(ctx, req.OrderID, req.TenantID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.InvalidState("order already has a receipt")
	}

	receipt := &domain.Receipt{
		ID:          uuid.NewString(),
		TenantID:    order.TenantID,
		OrderID:     order.ID,
		BuyerID:     req.BuyerID,
		ReviewerID:  order.VendorID,
		FileRef:     req.FileRef,
		Status:      domain.ReceiptStatusPendingReview,
		OCRMetadata: req.OCRMetadata,
	}
	if err := s.receipts.Create(ctx, receipt); err != nil {
		return nil, err
	}
	if err := s.orders.AttachReceipt(ctx, order.ID, order.TenantID, receipt.ID); err != nil {
		return nil, err
	}
	if _, err := s.lifecycle.Transition(ctx, order.TenantID, order.ID,
		domain.OrderStatusConfirmed, domain.OrderStatusPaid, req.BuyerID, nil); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("receipt_id", receipt.ID).
		Str("order_id", order.ID).
		Str("tenant_id", order.TenantID).
		Msg("Receipt registered for review")

	return receipt, nil
}

// VerifyReceiptRequest carries a reviewer verdict.
type VerifyReceiptRequest struct {
	TenantID   string
	ReceiptID  string
	ReviewerID string
	Action     domain.ReviewAction
	Notes      string
}

// VerifyReceiptOutcome reports where the decision landed.
type VerifyReceiptOutcome struct {
	ReceiptStatus       domain.ReceiptStatus
	OrderStatus         domain.OrderStatus
	RequiresCeoApproval bool
	EscalationID        string
}

// VerifyReceipt applies the reviewer's verdict. The escalation policy is
// evaluated against the order's recorded amount before anything commits:
// a flag always escalates regardless of amount, and any order at or above
// the high-value threshold escalates regardless of the verdict.
func (s *ReceiptVerificationService) VerifyReceipt(ctx context.Context, req *VerifyReceiptRequest) (*VerifyReceiptOutcome, error) {
	if !req.Action.Valid() {
		return nil, errors.InvalidInput("action", "must be approve, reject or flag")
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" && req.Action != domain.ReviewActionApprove {
		return nil, errors.InvalidInput("notes", "notes are required when rejecting or flagging")
	}

	receipt, err := s.receipts.GetByID(ctx, req.ReceiptID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Authorize(req.TenantID, receipt.TenantID); err != nil {
		return nil, err
	}
	if receipt.ReviewerID != req.ReviewerID {
		return nil, errors.Unauthorized("receipt is not assigned to this reviewer")
	}
	if receipt.Status.Resolved() {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"receipt already resolved to %s", receipt.Status)
	}

	order, err := s.orders.GetByID(ctx, receipt.OrderID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPaid {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order is in status %s, not awaiting verification", order.Status)
	}

	requiresEscalation := order.Amount >= s.policy.HighValueThreshold ||
		req.Action == domain.ReviewActionFlag

	if requiresEscalation {
		return s.escalate(ctx, req, receipt, order, notes)
	}
	return s.finalize(ctx, req, receipt, order, notes)
}

// escalate flags the receipt, raises an escalation and parks the order.
func (s *ReceiptVerificationService) escalate(ctx context.Context, req *VerifyReceiptRequest, receipt *domain.Receipt, order *domain.Order, notes string) (*VerifyReceiptOutcome, error) {
	reason := domain.EscalationReasonHighValue
	if req.Action == domain.ReviewActionFlag {
		reason = domain.EscalationReasonFlaggedByVendor
	}

	notesPtr := optional(notes)
	now := s.clock.Now()
	ok, err := s.receipts.ResolveIf(ctx, receipt.ID, receipt.TenantID,
		domain.ReceiptStatusFlagged, notesPtr, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidState("receipt was resolved by another reviewer")
	}

	esc := &domain.Escalation{
		ID:           uuid.NewString(),
		TenantID:     order.TenantID,
		OrderID:      order.ID,
		ReceiptID:    receipt.ID,
		VendorID:     order.VendorID,
		BuyerID:      order.BuyerID,
		BuyerContact: order.BuyerContact,
		Amount:       order.Amount,
		Reason:       reason,
		Status:       domain.EscalationStatusPending,
		ExpiresAt:    now.Add(s.policy.EscalationTTL),
	}
	if err := s.escalations.Create(ctx, esc); err != nil {
		return nil, err
	}

	if _, err := s.lifecycle.Transition(ctx, order.TenantID, order.ID,
		domain.OrderStatusPaid, domain.OrderStatusEscalated, req.ReviewerID, nil); err != nil {
		return nil, err
	}

	before := string(domain.ReceiptStatusPendingReview)
	after := string(domain.ReceiptStatusFlagged)
	if err := s.audit.Append(ctx, &domain.AuditEntry{
		ID:           uuid.NewString(),
		TenantID:     order.TenantID,
		OrderID:      order.ID,
		Action:       "escalation_created",
		PerformedBy:  req.ReviewerID,
		StatusBefore: &before,
		StatusAfter:  &after,
		Metadata: map[string]any{
			"escalation_id": esc.ID,
			"reason":        string(reason),
			"amount":        order.Amount,
		},
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("receipt_id", receipt.ID).
		Str("order_id", order.ID).
		Str("escalation_id", esc.ID).
		Str("reason", string(reason)).
		Int64("amount", order.Amount).
		Msg("Receipt escalated for CEO decision")

	return &VerifyReceiptOutcome{
		ReceiptStatus:       domain.ReceiptStatusFlagged,
		OrderStatus:         domain.OrderStatusEscalated,
		RequiresCeoApproval: true,
		EscalationID:        esc.ID,
	}, nil
}

// finalize resolves the receipt and the order without human escalation.
func (s *ReceiptVerificationService) finalize(ctx context.Context, req *VerifyReceiptRequest, receipt *domain.Receipt, order *domain.Order, notes string) (*VerifyReceiptOutcome, error) {
	var (
		receiptNext domain.ReceiptStatus
		orderNext   domain.OrderStatus
		message     string
	)
	switch req.Action {
	case domain.ReviewActionApprove:
		receiptNext = domain.ReceiptStatusApproved
		orderNext = domain.OrderStatusVerified
		message = fmt.Sprintf("Payment for order %s was verified. Your order is on its way.", order.ID)
	case domain.ReviewActionReject:
		receiptNext = domain.ReceiptStatusRejected
		orderNext = domain.OrderStatusCancelled
		message = fmt.Sprintf("Payment for order %s could not be verified: %s", order.ID, notes)
	}

	notesPtr := optional(notes)
	ok, err := s.receipts.ResolveIf(ctx, receipt.ID, receipt.TenantID, receiptNext, notesPtr, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidState("receipt was resolved by another reviewer")
	}

	if _, err := s.lifecycle.Transition(ctx, order.TenantID, order.ID,
		domain.OrderStatusPaid, orderNext, req.ReviewerID, nil); err != nil {
		return nil, err
	}

	before := string(domain.ReceiptStatusPendingReview)
	after := string(receiptNext)
	if err := s.audit.Append(ctx, &domain.AuditEntry{
		ID:           uuid.NewString(),
		TenantID:     order.TenantID,
		OrderID:      order.ID,
		Action:       "receipt_" + string(receiptNext),
		PerformedBy:  req.ReviewerID,
		StatusBefore: &before,
		StatusAfter:  &after,
	}); err != nil {
		return nil, err
	}

	// The decision is durably committed; delivery failure must never undo it.
	if err := s.notifier.SendBuyerNotification(ctx, order.TenantID, order.BuyerContact, message); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("Buyer notification failed")
	}

	s.log.Info().
		Str("receipt_id", receipt.ID).
		Str("order_id", order.ID).
		Str("receipt_status", string(receiptNext)).
		Str("order_status", string(orderNext)).
		Msg("Receipt resolved")

	return &VerifyReceiptOutcome{
		ReceiptStatus: receiptNext,
		OrderStatus:   orderNext,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

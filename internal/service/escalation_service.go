package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
	"github.com/orvio-ai/be-order-verification/internal/tenancy"
)

// ceoRole is the OTP role that gates escalation decisions.
const ceoRole = "ceo"

// EscalationService owns the OTP-gated approval/rejection flow and reflects
// the outcome into order state.
type EscalationService struct {
	escalations EscalationStore
	lifecycle   *OrderLifecycleService
	otp         *OTPService
	audit       AuditLog
	notifier    Notifier
	clock       clock.Clock
	log         *logger.Logger
}

// NewEscalationService creates a new escalation service.
func NewEscalationService(
	escalations EscalationStore,
	lifecycle *OrderLifecycleService,
	otp *OTPService,
	audit AuditLog,
	notifier Notifier,
	clk clock.Clock,
	log *logger.Logger,
) *EscalationService {
	return &EscalationService{
		escalations: escalations,
		lifecycle:   lifecycle,
		otp:         otp,
		audit:       audit,
		notifier:    notifier,
		clock:       clk,
		log:         log,
	}
}

// EscalationSummary is the masked view of an escalation. Raw buyer contact
// details never leave this service.
type EscalationSummary struct {
	ID                 string                  `json:"id"`
	OrderID            string                  `json:"order_id"`
	VendorID           string                  `json:"vendor_id"`
	BuyerContactMasked string                  `json:"buyer_contact"`
	Amount             int64                   `json:"amount"`
	Reason             domain.EscalationReason `json:"reason"`
	Status             domain.EscalationStatus `json:"status"`
	CreatedAt          time.Time               `json:"created_at"`
	ExpiresAt          time.Time               `json:"expires_at"`
}

// EscalationDetail extends the summary with decision fields.
type EscalationDetail struct {
	EscalationSummary
	ReceiptID     string     `json:"receipt_id"`
	DecisionNotes *string    `json:"decision_notes,omitempty"`
	DecidedBy     *string    `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// GetPending lists the tenant's pending escalations with contacts masked.
func (s *EscalationService) GetPending(ctx context.Context, actorTenant, ceoID string) ([]EscalationSummary, error) {
	if ceoID == "" {
		return nil, errors.InvalidInput("ceo_id", "ceo is required")
	}

	escalations, err := s.escalations.ListPending(ctx, actorTenant)
	if err != nil {
		return nil, err
	}

	summaries := make([]EscalationSummary, 0, len(escalations))
	for _, esc := range escalations {
		if err := tenancy.Authorize(actorTenant, esc.TenantID); err != nil {
			return nil, err
		}
		summaries = append(summaries, maskSummary(esc))
	}
	return summaries, nil
}

// GetDetails returns one masked escalation after the tenancy check.
func (s *EscalationService) GetDetails(ctx context.Context, actorTenant, ceoID, escalationID string) (*EscalationDetail, error) {
	esc, err := s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Authorize(actorTenant, esc.TenantID); err != nil {
		return nil, err
	}

	detail := &EscalationDetail{
		EscalationSummary: maskSummary(esc),
		ReceiptID:         esc.ReceiptID,
		DecisionNotes:     esc.DecisionNotes,
		DecidedBy:         esc.DecidedBy,
		DecidedAt:         esc.DecidedAt,
	}
	return detail, nil
}

// RequestDecisionCode issues a fresh one-time code for the CEO and hands it
// to the out-of-band delivery channel. The code is never part of the response.
func (s *EscalationService) RequestDecisionCode(ctx context.Context, actorTenant, subject string) error {
	code, err := s.otp.Issue(ctx, subject, ceoRole)
	if err != nil {
		return err
	}
	expiresAt := s.clock.Now().Add(s.otp.cfg.TTL)
	if err := s.notifier.SendDecisionCode(ctx, actorTenant, subject, code, expiresAt); err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("Decision code delivery failed")
	}
	return nil
}

// DecideRequest carries a CEO decision on an escalation.
type DecideRequest struct {
	TenantID     string
	CeoID        string
	EscalationID string
	OTPCode      string
	Decision     domain.Decision
	Notes        string
}

// DecideOutcome reports the committed decision.
type DecideOutcome struct {
	Decision      domain.Decision
	EscalationID  string
	OrderID       string
	OrderStatus   domain.OrderStatus
	BuyerNotified bool
}

// Decide resolves a pending escalation. The one-time code is checked first
// and is destroyed on success, so a replayed code fails before any state is
// read; every later failure leaves the escalation untouched. Notification
// delivery happens after the decision is durably committed and its failure
// never rolls the decision back.
func (s *EscalationService) Decide(ctx context.Context, req *DecideRequest) (*DecideOutcome, error) {
	if !req.Decision.Valid() {
		return nil, errors.InvalidInput("decision", "must be approve or reject")
	}
	notes := strings.TrimSpace(req.Notes)

	// Step 1: the OTP gate. Any failure aborts with no state change.
	if err := s.otp.Verify(ctx, req.CeoID, ceoRole, req.OTPCode); err != nil {
		return nil, err
	}

	// Step 2: load and guard.
	esc, err := s.escalations.GetByID(ctx, req.EscalationID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.Authorize(req.TenantID, esc.TenantID); err != nil {
		return nil, err
	}
	if esc.Status != domain.EscalationStatusPending {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"escalation already %s", esc.Status)
	}
	now := s.clock.Now()
	if !now.Before(esc.ExpiresAt) {
		// Expiry is enforced lazily at decide time.
		if err := s.escalations.MarkExpired(ctx, esc.ID); err != nil {
			return nil, err
		}
		return nil, errors.InvalidState("escalation has expired")
	}

	// Step 3: terminal escalation write, conditional on still pending.
	next := domain.EscalationStatusApproved
	orderNext := domain.OrderStatusApproved
	if req.Decision == domain.DecisionReject {
		next = domain.EscalationStatusRejected
		orderNext = domain.OrderStatusRejected
	}
	ok, err := s.escalations.DecideIf(ctx, esc.ID, next, req.CeoID, optional(notes), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.InvalidState("escalation was decided concurrently")
	}

	// Step 4: reflect into order state through the lifecycle manager.
	if _, err := s.lifecycle.Transition(ctx, esc.TenantID, esc.OrderID,
		domain.OrderStatusEscalated, orderNext, req.CeoID, nil); err != nil {
		return nil, err
	}

	before := string(domain.EscalationStatusPending)
	after := string(next)
	if err := s.audit.Append(ctx, &domain.AuditEntry{
		ID:           uuid.NewString(),
		TenantID:     esc.TenantID,
		OrderID:      esc.OrderID,
		Action:       "escalation_decided",
		PerformedBy:  req.CeoID,
		StatusBefore: &before,
		StatusAfter:  &after,
		Metadata: map[string]any{
			"escalation_id": esc.ID,
			"decision":      string(req.Decision),
		},
	}); err != nil {
		return nil, err
	}

	// Step 5: best-effort notifications.
	buyerNotified := s.notifyDecision(ctx, esc, req, orderNext)

	s.log.Info().
		Str("escalation_id", esc.ID).
		Str("order_id", esc.OrderID).
		Str("decision", string(req.Decision)).
		Str("ceo_id", req.CeoID).
		Int64("amount", esc.Amount).
		Msg("Escalation decided")

	return &DecideOutcome{
		Decision:      req.Decision,
		EscalationID:  esc.ID,
		OrderID:       esc.OrderID,
		OrderStatus:   orderNext,
		BuyerNotified: buyerNotified,
	}, nil
}

func (s *EscalationService) notifyDecision(ctx context.Context, esc *domain.Escalation, req *DecideRequest, orderNext domain.OrderStatus) bool {
	var message string
	if req.Decision == domain.DecisionApprove {
		message = fmt.Sprintf("Payment for order %s was approved. Your order is on its way.", esc.OrderID)
	} else {
		message = fmt.Sprintf("Payment for order %s was rejected. Please contact the seller.", esc.OrderID)
	}

	buyerNotified := true
	if err := s.notifier.SendBuyerNotification(ctx, esc.TenantID, esc.BuyerContact, message); err != nil {
		s.log.Warn().Err(err).Str("escalation_id", esc.ID).Msg("Buyer notification failed")
		buyerNotified = false
	}
	if err := s.notifier.SendResolutionNotification(ctx, esc.TenantID, req.CeoID,
		esc.ID, esc.OrderID, req.Decision, esc.Amount); err != nil {
		s.log.Warn().Err(err).Str("escalation_id", esc.ID).Msg("Resolution notification failed")
	}
	return buyerNotified
}

func maskSummary(esc *domain.Escalation) EscalationSummary {
	return EscalationSummary{
		ID:                 esc.ID,
		OrderID:            esc.OrderID,
		VendorID:           esc.VendorID,
		BuyerContactMasked: domain.MaskContact(esc.BuyerContact),
		Amount:             esc.Amount,
		Reason:             esc.Reason,
		Status:             esc.Status,
		CreatedAt:          esc.CreatedAt,
		ExpiresAt:          esc.ExpiresAt,
	}
}

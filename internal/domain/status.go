package domain

// ── Status enums and transition tables ───────────────────────────────────────
//
// Every state machine in the service is a closed enum with an explicit
// transition table. Anything not listed here is an illegal edge, which is
// what gives the expected-current-status write guard its enforcement power.

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusVerified  OrderStatus = "verified"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusEscalated OrderStatus = "escalated"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusRejected  OrderStatus = "rejected"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed},
	OrderStatusConfirmed: {OrderStatusPaid},
	OrderStatusPaid:      {OrderStatusVerified, OrderStatusCancelled, OrderStatusEscalated},
	OrderStatusEscalated: {OrderStatusApproved, OrderStatusRejected},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPaid,
		OrderStatusVerified, OrderStatusCancelled, OrderStatusEscalated,
		OrderStatusApproved, OrderStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether s→next is a legal edge.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no edge leaves s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// ReceiptStatus is the review status of a payment receipt.
type ReceiptStatus string

const (
	ReceiptStatusPendingReview ReceiptStatus = "pending_review"
	ReceiptStatusApproved      ReceiptStatus = "approved"
	ReceiptStatusRejected      ReceiptStatus = "rejected"
	ReceiptStatusFlagged       ReceiptStatus = "flagged"
)

// Valid reports whether s is a known receipt status.
func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptStatusPendingReview, ReceiptStatusApproved,
		ReceiptStatusRejected, ReceiptStatusFlagged:
		return true
	}
	return false
}

// Resolved reports whether the receipt has left pending_review. A resolved
// receipt is immutable; reprocessing it is an invalid-state error.
func (s ReceiptStatus) Resolved() bool {
	return s.Valid() && s != ReceiptStatusPendingReview
}

// EscalationStatus is the status of a human-decision escalation.
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "pending"
	EscalationStatusApproved EscalationStatus = "approved"
	EscalationStatusRejected EscalationStatus = "rejected"
	EscalationStatusExpired  EscalationStatus = "expired"
)

// Valid reports whether s is a known escalation status.
func (s EscalationStatus) Valid() bool {
	switch s {
	case EscalationStatusPending, EscalationStatusApproved,
		EscalationStatusRejected, EscalationStatusExpired:
		return true
	}
	return false
}

// Decided reports whether the escalation has reached a terminal state.
func (s EscalationStatus) Decided() bool {
	return s.Valid() && s != EscalationStatusPending
}

// EscalationReason records why an escalation was raised.
type EscalationReason string

const (
	EscalationReasonHighValue       EscalationReason = "high_value"
	EscalationReasonFlaggedByVendor EscalationReason = "flagged_by_vendor"
)

// ReviewAction is a reviewer's verdict on a receipt.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
	ReviewActionFlag    ReviewAction = "flag"
)

// Valid reports whether a is a known review action.
func (a ReviewAction) Valid() bool {
	switch a {
	case ReviewActionApprove, ReviewActionReject, ReviewActionFlag:
		return true
	}
	return false
}

// Decision is a CEO verdict on an escalation.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

package domain

import "time"

// Order is a transaction between a buyer and a vendor under one tenant.
// Tenant ID is immutable after creation; status only advances along the
// edges in orderTransitions, and only the order lifecycle service writes it.
type Order struct {
	ID           string
	TenantID     string
	VendorID     string
	BuyerID      string
	BuyerContact string // chat handle / phone the buyer ordered from
	Amount       int64  // fixed-point, minor currency units
	Currency     string
	Status       OrderStatus
	ReceiptID    *string
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Receipt is proof-of-payment metadata. The binary artifact lives in external
// object storage; only its reference and the extractor output are kept here.
// A receipt resolves exactly once away from pending_review.
type Receipt struct {
	ID            string
	TenantID      string
	OrderID       string
	BuyerID       string
	ReviewerID    string // vendor who must review this receipt
	FileRef       string // object storage key, opaque
	Status        ReceiptStatus
	ReviewerNotes *string
	ReviewedAt    *time.Time
	OCRMetadata   map[string]any // extractor fields + confidences, never interpreted
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Escalation is a request for a human decision on an order/receipt pair.
// Its tenant always equals the order's tenant; it is decidable only while
// pending and before expiry, and immutable once decided.
type Escalation struct {
	ID            string
	TenantID      string
	OrderID       string
	ReceiptID     string
	VendorID      string
	BuyerID       string
	BuyerContact  string
	Amount        int64
	Reason        EscalationReason
	Status        EscalationStatus
	DecisionNotes *string
	DecidedBy     *string
	DecidedAt     *time.Time
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OTPCredential is a short-lived passcode record. Only the hash of the code
// is stored; the record is deleted on first successful verification, which is
// what makes a replayed code fail. At most one live credential exists per
// (subject, role).
type OTPCredential struct {
	Subject      string
	Role         string
	CodeHash     []byte
	FailureCount int
	LockedUntil  *time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Locked reports whether the subject is locked out at the given instant.
func (c *OTPCredential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// Expired reports whether the credential has passed its TTL.
func (c *OTPCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuditEntry is one immutable record in the decision audit log.
type AuditEntry struct {
	ID           string
	TenantID     string
	OrderID      string
	Action       string // receipt_approved | receipt_rejected | escalation_created | escalation_decided | order_transition
	PerformedBy  string
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]any
	PerformedAt  time.Time
}

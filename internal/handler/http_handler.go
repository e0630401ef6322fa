package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
	"github.com/orvio-ai/be-order-verification/internal/service"
)

// HTTPHandler exposes the verification API over HTTP. The actor's tenant and
// identity arrive as X-Tenant-ID / X-Actor-ID headers set by the gateway.
type HTTPHandler struct {
	lifecycle   *service.OrderLifecycleService
	verifier    *service.ReceiptVerificationService
	escalations *service.EscalationService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	lifecycle *service.OrderLifecycleService,
	verifier *service.ReceiptVerificationService,
	escalations *service.EscalationService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		lifecycle:   lifecycle,
		verifier:    verifier,
		escalations: escalations,
		log:         log,
	}
}

// Routes mounts all API routes on a router.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/confirm", h.ConfirmOrder)
		r.Get("/orders/{id}/audit", h.GetOrderAudit)

		r.Post("/receipts", h.RegisterReceipt)
		r.Post("/receipts/{id}/verify", h.VerifyReceipt)

		r.Get("/escalations", h.ListEscalations)
		r.Get("/escalations/{id}", h.GetEscalation)
		r.Post("/escalations/{id}/approve", h.ApproveEscalation)
		r.Post("/escalations/{id}/reject", h.RejectEscalation)

		r.Post("/otp/request", h.RequestOTP)
	})
}

// ── Orders ────────────────────────────────────────────────────────────────────

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VendorID     string  `json:"vendor_id"`
		BuyerID      string  `json:"buyer_id"`
		BuyerContact string  `json:"buyer_contact"`
		Amount       int64   `json:"amount"`
		Currency     string  `json:"currency"`
		Notes        *string `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	order, err := h.lifecycle.CreateOrder(r.Context(), &service.CreateOrderRequest{
		TenantID:     actorTenant(r),
		VendorID:     body.VendorID,
		BuyerID:      body.BuyerID,
		BuyerContact: body.BuyerContact,
		Amount:       body.Amount,
		Currency:     body.Currency,
		Notes:        body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.lifecycle.GetOrder(r.Context(), actorTenant(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		status = &st
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	orders, total, err := h.lifecycle.ListOrders(r.Context(), actorTenant(r), status, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		items = append(items, orderResponse(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":    items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *HTTPHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.lifecycle.ConfirmOrder(r.Context(), actorTenant(r), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

func (h *HTTPHandler) GetOrderAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lifecycle.GetAuditTrail(r.Context(), actorTenant(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":           entry.ID,
			"action":       entry.Action,
			"performed_by": entry.PerformedBy,
			"performed_at": entry.PerformedAt,
		}
		if entry.StatusBefore != nil {
			item["status_before"] = *entry.StatusBefore
		}
		if entry.StatusAfter != nil {
			item["status_after"] = *entry.StatusAfter
		}
		if entry.Metadata != nil {
			item["metadata"] = entry.Metadata
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

// ── Receipts ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) RegisterReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderID     string         `json:"order_id"`
		BuyerID     string         `json:"buyer_id"`
		FileRef     string         `json:"file_ref"`
		OCRMetadata map[string]any `json:"ocr_metadata"`
	}
	if !decode(w, r, &body) {
		return
	}

	receipt, err := h.verifier.RegisterReceipt(r.Context(), &service.RegisterReceiptRequest{
		TenantID:    actorTenant(r),
		OrderID:     body.OrderID,
		BuyerID:     body.BuyerID,
		FileRef:     body.FileRef,
		OCRMetadata: body.OCRMetadata,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       receipt.ID,
		"order_id": receipt.OrderID,
		"status":   receipt.Status,
	})
}

func (h *HTTPHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	outcome, err := h.verifier.VerifyReceipt(r.Context(), &service.VerifyReceiptRequest{
		TenantID:   actorTenant(r),
		ReceiptID:  chi.URLParam(r, "id"),
		ReviewerID: actorID(r),
		Action:     domain.ReviewAction(body.Action),
		Notes:      body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"status":                outcome.ReceiptStatus,
		"order_status":          outcome.OrderStatus,
		"requires_ceo_approval": outcome.RequiresCeoApproval,
	}
	if outcome.EscalationID != "" {
		resp["escalation_id"] = outcome.EscalationID
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Escalations ───────────────────────────────────────────────────────────────

func (h *HTTPHandler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	ceoID := r.URL.Query().Get("ceo_id")
	if ceoID == "" {
		ceoID = actorID(r)
	}

	summaries, err := h.escalations.GetPending(r.Context(), actorTenant(r), ceoID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": summaries})
}

func (h *HTTPHandler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	detail, err := h.escalations.GetDetails(r.Context(), actorTenant(r), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *HTTPHandler) ApproveEscalation(w http.ResponseWriter, r *http.Request) {
	h.decideEscalation(w, r, domain.DecisionApprove)
}

func (h *HTTPHandler) RejectEscalation(w http.ResponseWriter, r *http.Request) {
	h.decideEscalation(w, r, domain.DecisionReject)
}

func (h *HTTPHandler) decideEscalation(w http.ResponseWriter, r *http.Request, decision domain.Decision) {
	var body struct {
		OTP   string `json:"otp"`
		Notes string `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	outcome, err := h.escalations.Decide(r.Context(), &service.DecideRequest{
		TenantID:     actorTenant(r),
		CeoID:        actorID(r),
		EscalationID: chi.URLParam(r, "id"),
		OTPCode:      body.OTP,
		Decision:     decision,
		Notes:        body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decision":       outcome.Decision,
		"escalation_id":  outcome.EscalationID,
		"order_id":       outcome.OrderID,
		"order_status":   outcome.OrderStatus,
		"buyer_notified": outcome.BuyerNotified,
	})
}

// ── OTP ───────────────────────────────────────────────────────────────────────

func (h *HTTPHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
	}
	if !decode(w, r, &body) {
		return
	}
	subject := body.Subject
	if subject == "" {
		subject = actorID(r)
	}

	// The code travels out-of-band; the response only acknowledges issuance.
	if err := h.escalations.RequestDecisionCode(r.Context(), actorTenant(r), subject); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issued": true})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func actorTenant(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-Actor-ID")
}

func orderResponse(order *domain.Order) map[string]any {
	resp := map[string]any{
		"id":         order.ID,
		"tenant_id":  order.TenantID,
		"vendor_id":  order.VendorID,
		"buyer_id":   order.BuyerID,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"status":     order.Status,
		"created_at": order.CreatedAt,
		"updated_at": order.UpdatedAt,
	}
	if order.ReceiptID != nil {
		resp["receipt_id"] = *order.ReceiptID
	}
	if order.Notes != nil {
		resp["notes"] = *order.Notes
	}
	return resp
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps error codes to HTTP statuses. Everything uncoded is a 500
// with a generic body so internals never leak.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.Code(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case errors.ErrCodeInvalidState:
		status = http.StatusConflict
	case errors.ErrCodeValidation:
		status = http.StatusBadRequest
	case errors.ErrCodeCredential:
		status = http.StatusUnauthorized
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		message = "internal server error"
	}

	writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
	})
}

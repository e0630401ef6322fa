package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/orvio-ai/be-order-verification/internal/domain"
)

// NotificationPublisher publishes order verification events to NATS JetStream
// for consumption by the downstream notification service.
//
// Subject convention: notifications.orders.<event_type>
// Event types: buyer_update, escalation_resolved, decision_code
//
// Publishing is fire-and-forget from the caller's point of view: the service
// layer logs a returned error and moves on, because the decision the event
// describes is already durably committed.
type NotificationPublisher struct {
	js  nats.JetStreamContext
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	TenantID     string         `json:"tenant_id"`
	Recipient    string         `json:"recipient"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Message      string         `json:"message,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS and returns a publisher. An empty
// URL returns a disabled publisher whose sends succeed as no-ops.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	p := &NotificationPublisher{log: log.With().Str("client", "notifications").Logger()}
	if url == "" {
		p.log.Info().Msg("NATS URL not set; notification publishing disabled")
		return p, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("be-order-verification"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}
	p.js = js
	return p, nil
}

// SendBuyerNotification delivers a status message to the buyer's chat ref.
func (p *NotificationPublisher) SendBuyerNotification(ctx context.Context, tenantID, buyerRef, message string) error {
	return p.publish(ctx, "buyer_update", &NotificationEvent{
		EventType: "buyer_update",
		TenantID:  tenantID,
		Recipient: buyerRef,
		Message:   message,
	})
}

// SendResolutionNotification tells the CEO how their decision landed.
func (p *NotificationPublisher) SendResolutionNotification(ctx context.Context, tenantID, ceoRef, escalationID, orderID string, decision domain.Decision, amount int64) error {
	return p.publish(ctx, "escalation_resolved", &NotificationEvent{
		EventType:    "escalation_resolved",
		TenantID:     tenantID,
		Recipient:    ceoRef,
		ResourceType: "escalation",
		ResourceID:   escalationID,
		Payload: map[string]any{
			"order_id": orderID,
			"decision": string(decision),
			"amount":   amount,
		},
	})
}

// SendDecisionCode hands a freshly issued one-time code to the out-of-band
// delivery channel. The code appears only in the event payload, never in logs.
func (p *NotificationPublisher) SendDecisionCode(ctx context.Context, tenantID, subjectRef, code string, expiresAt time.Time) error {
	return p.publish(ctx, "decision_code", &NotificationEvent{
		EventType: "decision_code",
		TenantID:  tenantID,
		Recipient: subjectRef,
		Payload: map[string]any{
			"code":       code,
			"expires_at": expiresAt,
		},
	})
}

func (p *NotificationPublisher) publish(_ context.Context, eventType string, event *NotificationEvent) error {
	if p.js == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	subject := fmt.Sprintf("notifications.orders.%s", eventType)
	if _, err := p.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("tenant_id", event.TenantID).
		Msg("Notification event published")
	return nil
}

package domain

import "time"

// WebhookEvent is one row of the append-only idempotency ledger. The pair
// (OrderID, EventType) is unique; a second delivery of the same pair is
// short-circuited before any stock mutation.
type WebhookEvent struct {
	ID         int64
	OrderID    string
	EventType  string
	ReceivedAt time.Time
}

func NewWebhookEvent(orderID, eventType string) *WebhookEvent {
	return &WebhookEvent{
		OrderID:    orderID,
		EventType:  eventType,
		ReceivedAt: time.Now().UTC(),
	}
}

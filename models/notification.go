package models

import "time"

const (
	WhatsAppStatusPending = "pending"
	WhatsAppStatusSent    = "sent"
	WhatsAppStatusFailed  = "failed"
)

// WhatsAppRequest is one outbound result-ready notification, enqueued when
// an order becomes authenticated and delivered asynchronously by the
// dispatcher. Enqueueing is fire-and-forget from the lifecycle's view.
type WhatsAppRequest struct {
	OrderID        string     `json:"orderId"`
	Mobile         string     `json:"mobile"`
	PatientID      string     `json:"patient_id"`
	AutoPassword   string     `json:"auto_password,omitempty"`
	WhatsAppStatus string     `json:"whatsapp_status"`
	Attempts       int        `json:"attempts,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
}

package handlers

import (
	"github.com/shopspring/decimal"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
)

// InitiatePaymentRequest is the body of POST /api/v1/subscriptions/payments.
// Amount accepts a JSON number or a numeric string.
type InitiatePaymentRequest struct {
	StudentID   uint            `json:"student_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number" validate:"required,min=9,max=20"`
}

type InitiatePaymentResponse struct {
	CheckoutRequestID string                 `json:"checkout_request_id"`
	CustomerMessage   string                 `json:"customer_message,omitempty"`
	PendingPayment    *models.PendingPayment `json:"pending_payment"`
}

// CallbackAck is the acknowledgement the gateway expects from every webhook.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

package model

import "time"

// Invoice statuses: pending -> paid -> refunded.
const (
	InvoicePending  = "pending"
	InvoicePaid     = "paid"
	InvoiceRefunded = "refunded"
)

// Invoice is a bill raised against an event.
type Invoice struct {
	ID            uint64        `json:"id"`
	EventID       uint64        `json:"eventId"`
	InvoiceNumber string        `json:"invoiceNumber"`
	Amount        float64       `json:"amount"`
	Status        string        `json:"status"`
	DueDate       *string       `json:"dueDate"`
	Notes         *string       `json:"notes"`
	PaymentID     *string       `json:"paymentId"`
	PaymentAmount *float64      `json:"paymentAmount"`
	PaidAt        *time.Time    `json:"paidAt"`
	RefundID      *string       `json:"refundId"`
	RefundAmount  *float64      `json:"refundAmount"`
	RefundedAt    *time.Time    `json:"refundedAt"`
	CreatedBy     uint64        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Items         []InvoiceItem `json:"items"`

	EventTitle *string `json:"eventTitle,omitempty"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          uint64  `json:"id"`
	InvoiceID   uint64  `json:"invoiceId"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Total returns quantity times unit price.
func (it InvoiceItem) Total() float64 { return float64(it.Quantity) * it.UnitPrice }

// Payment is recorded when an invoice moves to paid.
type Payment struct {
	ID        uint64    `json:"id"`
	InvoiceID uint64    `json:"invoiceId"`
	PaymentID string    `json:"paymentId"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"createdAt"`
}

// Refund is recorded when an invoice moves to refunded.
type Refund struct {
	ID        uint64    `json:"id"`
	InvoiceID uint64    `json:"invoiceId"`
	RefundID  string    `json:"refundId"`
	Amount    float64   `json:"amount"`
	Reason    *string   `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

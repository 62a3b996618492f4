package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
)

// InvoiceStore is the invoices persistence.
type InvoiceStore interface {
	Create(ctx context.Context, inv *model.Invoice) error
	GetByID(ctx context.Context, id uint64) (*model.Invoice, error)
	List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error)
	WithinTx(ctx context.Context, fn func(repository.InvoiceTx) error) error
}

type eventLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// CreateInvoiceInput is the payload of a new invoice.  Amount defaults to
// the sum of the items.
type CreateInvoiceInput struct {
	EventID uint64
	Items   []model.InvoiceItem
	Amount  *float64
	DueDate *string
	Notes   *string
}

// PayInput is the payment request; Amount defaults to the invoice amount.
type PayInput struct {
	Amount *float64
	Method string
}

// RefundInput is the refund request; Amount defaults to the amount paid.
type RefundInput struct {
	Amount *float64
	Reason *string
}

// InvoiceService runs the pending -> paid -> refunded state machine.
type InvoiceService struct {
	invoices InvoiceStore
	events   eventLookup
	log      zerolog.Logger
	clock    Clock
}

func NewInvoiceService(invoices InvoiceStore, events eventLookup, log zerolog.Logger) *InvoiceService {
	return &InvoiceService{invoices: invoices, events: events, log: log}
}

const invoiceNumberAttempts = 3

// Create raises a pending invoice against an existing event.
func (s *InvoiceService) Create(ctx context.Context, actor Actor, in CreateInvoiceInput) (*model.Invoice, error) {
	if _, err := s.events.GetByID(ctx, in.EventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrEventNotFound
		}
		return nil, internal(err)
	}
	if len(in.Items) == 0 && in.Amount == nil {
		return nil, invalid("items", "provide at least one item or an amount")
	}
	var total float64
	for i, it := range in.Items {
		if strings.TrimSpace(it.Description) == "" {
			return nil, invalid(fmt.Sprintf("items[%d].description", i), "is required")
		}
		if it.Quantity <= 0 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if it.UnitPrice < 0 {
			return nil, invalid(fmt.Sprintf("items[%d].unitPrice", i), "must be zero or more")
		}
		total += it.Total()
	}
	amount := roundCents(total)
	if in.Amount != nil {
		amount = roundCents(*in.Amount)
	}
	// Pay refuses zero, so a zero invoice could never be settled
	if amount <= 0 {
		return nil, invalid("amount", "must be greater than 0")
	}
	if in.DueDate != nil {
		if err := checkDate("dueDate", *in.DueDate); err != nil {
			return nil, err
		}
	}

	inv := &model.Invoice{
		EventID:   in.EventID,
		Amount:    amount,
		Status:    model.InvoicePending,
		DueDate:   in.DueDate,
		Notes:     trimmed(in.Notes),
		CreatedBy: actor.UserID,
		Items:     in.Items,
	}
	for attempt := 1; ; attempt++ {
		inv.InvoiceNumber = s.invoiceNumber()
		err := s.invoices.Create(ctx, inv)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicate) && attempt < invoiceNumberAttempts {
			continue
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperror.ErrEventNotFound
		}
		return nil, internal(err)
	}
	s.log.Info().Uint64("invoice_id", inv.ID).Str("number", inv.InvoiceNumber).Float64("amount", inv.Amount).Msg("invoice created")
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, id uint64) (*model.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperror.ErrInvoiceNotFound)
	}
	return inv, nil
}

func (s *InvoiceService) List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error) {
	switch f.Status {
	case "", model.InvoicePending, model.InvoicePaid, model.InvoiceRefunded:
	default:
		return nil, apperror.ErrInvalidStatus.WithField("status", "must be one of: pending, paid, refunded")
	}
	out, err := s.invoices.List(ctx, f)
	return out, internal(err)
}

// Pay records a payment.  Only a pending invoice can be paid; the status
// guard is repeated in the UPDATE so two concurrent payments cannot both
// succeed.
func (s *InvoiceService) Pay(ctx context.Context, id uint64, in PayInput) (*model.Invoice, error) {
	now := s.clock.now()
	err := s.invoices.WithinTx(ctx, func(tx repository.InvoiceTx) error {
		inv, err := tx.Lock(ctx, id)
		if err != nil {
			return notFound(err, apperror.ErrInvoiceNotFound)
		}
		if inv.Status != model.InvoicePending {
			return apperror.ErrAlreadyPaid
		}
		amount := inv.Amount
		if in.Amount != nil {
			amount = roundCents(*in.Amount)
		}
		if amount <= 0 {
			return invalid("amount", "must be greater than 0")
		}
		method := strings.TrimSpace(in.Method)
		if method == "" {
			method = "manual"
		}
		p := &model.Payment{InvoiceID: id, PaymentID: transactionID("PAY", now), Amount: amount, Method: method}
		if err := tx.MarkPaid(ctx, p, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperror.ErrAlreadyPaid
			}
			return internal(err)
		}
		s.log.Info().Uint64("invoice_id", id).Str("payment_id", p.PaymentID).Float64("amount", amount).Msg("invoice paid")
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	return s.Get(ctx, id)
}

// Refund records a refund of a paid invoice.  The refund may not exceed
// the amount paid.
func (s *InvoiceService) Refund(ctx context.Context, id uint64, in RefundInput) (*model.Invoice, error) {
	now := s.clock.now()
	err := s.invoices.WithinTx(ctx, func(tx repository.InvoiceTx) error {
		inv, err := tx.Lock(ctx, id)
		if err != nil {
			return notFound(err, apperror.ErrInvoiceNotFound)
		}
		if inv.Status != model.InvoicePaid {
			return apperror.ErrNotPaid
		}
		paid := inv.Amount
		if inv.PaymentAmount != nil {
			paid = *inv.PaymentAmount
		}
		amount := paid
		if in.Amount != nil {
			amount = roundCents(*in.Amount)
		}
		if amount <= 0 {
			return invalid("amount", "must be greater than 0")
		}
		if amount > paid {
			return invalid("amount", fmt.Sprintf("must not exceed the amount paid (%.2f)", paid))
		}
		r := &model.Refund{InvoiceID: id, RefundID: transactionID("REF", now), Amount: amount, Reason: trimmed(in.Reason)}
		if err := tx.MarkRefunded(ctx, r, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperror.ErrNotPaid
			}
			return internal(err)
		}
		s.log.Info().Uint64("invoice_id", id).Str("refund_id", r.RefundID).Float64("amount", amount).Msg("invoice refunded")
		return nil
	})
	if err != nil {
		return nil, internal(err)
	}
	return s.Get(ctx, id)
}

// invoiceNumber is INV-<yyyymmdd>-<6 hex>.
func (s *InvoiceService) invoiceNumber() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("INV-%s-%s", s.clock.now().Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}

// transactionID is <prefix>-<unix millis>-<8 random hex>.
func transactionID(prefix string, now time.Time) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), strings.ToUpper(r))
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

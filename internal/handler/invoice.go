package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/evms/internal/model"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/service"
)

type invoiceService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateInvoiceInput) (*model.Invoice, error)
	Get(ctx context.Context, id uint64) (*model.Invoice, error)
	List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error)
	Pay(ctx context.Context, id uint64, in service.PayInput) (*model.Invoice, error)
	Refund(ctx context.Context, id uint64, in service.RefundInput) (*model.Invoice, error)
}

// InvoiceHandler serves /api/invoices.
type InvoiceHandler struct {
	Invoices invoiceService
}

func NewInvoiceHandler(invoices invoiceService) *InvoiceHandler {
	return &InvoiceHandler{Invoices: invoices}
}

type invoiceItemReq struct {
	Description string  `json:"description" validate:"required,max=512"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
}

type createInvoiceReq struct {
	EventID uint64           `json:"eventId" validate:"required"`
	Items   []invoiceItemReq `json:"items" validate:"omitempty,dive"`
	Amount  *float64         `json:"amount" validate:"omitempty,gte=0"`
	DueDate *string          `json:"dueDate" validate:"omitempty,date"`
	Notes   *string          `json:"notes"`
}

type payReq struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Method string   `json:"paymentMethod" validate:"omitempty,max=64"`
}

type refundReq struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Reason *string  `json:"reason"`
}

func (h *InvoiceHandler) filter(c echo.Context) (repository.InvoiceFilter, error) {
	eventID, err := queryUint(c, "eventId")
	if err != nil {
		return repository.InvoiceFilter{}, err
	}
	return repository.InvoiceFilter{EventID: eventID, Status: strings.TrimSpace(c.QueryParam("status"))}, nil
}

// List handles GET /api/invoices?eventId=&status=.
func (h *InvoiceHandler) List(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Invoices.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items(out))
}

func (h *InvoiceHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	inv, err := h.Invoices.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

// Create handles POST /api/invoices.
func (h *InvoiceHandler) Create(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req createInvoiceReq
	if err := bind(c, &req); err != nil {
		return err
	}
	lines := make([]model.InvoiceItem, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, model.InvoiceItem{Description: strings.TrimSpace(it.Description), Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	inv, err := h.Invoices.Create(ctx, actor, service.CreateInvoiceInput{
		EventID: req.EventID,
		Items:   lines,
		Amount:  req.Amount,
		DueDate: req.DueDate,
		Notes:   req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

// Pay handles POST /api/invoices/:id/pay.
func (h *InvoiceHandler) Pay(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req payReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	inv, err := h.Invoices.Pay(ctx, id, service.PayInput{Amount: req.Amount, Method: req.Method})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

// Refund handles POST /api/invoices/:id/refund.
func (h *InvoiceHandler) Refund(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req refundReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	inv, err := h.Invoices.Refund(ctx, id, service.RefundInput{Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

var invoiceCSVHeader = []string{
	"id", "invoice_number", "event_id", "event_title", "amount", "status", "due_date",
	"payment_id", "payment_amount", "paid_at", "refund_id", "refund_amount", "refunded_at", "created_at",
}

// ExportCSV handles GET /api/invoices/export/csv with the list filters.
func (h *InvoiceHandler) ExportCSV(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	invoices, err := h.Invoices.List(ctx, f)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			num(&inv.ID), inv.InvoiceNumber, num(&inv.EventID), str(inv.EventTitle), money(inv.Amount), inv.Status, str(inv.DueDate),
			str(inv.PaymentID), moneyPtr(inv.PaymentAmount), stamp(inv.PaidAt),
			str(inv.RefundID), moneyPtr(inv.RefundAmount), stamp(inv.RefundedAt), stamp(&inv.CreatedAt),
		})
	}
	return writeCSV(c, "invoices.csv", invoiceCSVHeader, rows)
}

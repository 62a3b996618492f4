package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/evms/internal/model"
)

// InvoiceTx is the set of statements run inside a pay or refund
// transaction.
type InvoiceTx interface {
	// Lock reads the invoice row with an exclusive lock.
	Lock(ctx context.Context, id uint64) (*model.Invoice, error)
	// MarkPaid moves a pending invoice to paid.  ErrConflict means the row
	// was no longer pending.
	MarkPaid(ctx context.Context, p *model.Payment, at time.Time) error
	// MarkRefunded moves a paid invoice to refunded.  ErrConflict means the
	// row was no longer paid.
	MarkRefunded(ctx context.Context, r *model.Refund, at time.Time) error
}

// InvoiceFilter narrows List.
type InvoiceFilter struct {
	EventID *uint64
	Status  string
}

// InvoiceRepo persists invoices with their items, payments and refunds.
type InvoiceRepo struct {
	db *sql.DB
}

func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceSelect = `SELECT i.id, i.event_id, i.invoice_number, i.amount, i.status,
       DATE_FORMAT(i.due_date, '%Y-%m-%d'), i.notes,
       i.payment_id, i.payment_amount, i.paid_at, i.refund_id, i.refund_amount, i.refunded_at,
       i.created_by, i.created_at, i.updated_at, e.title
FROM invoices i
LEFT JOIN events e ON e.id = i.event_id`

func scanInvoice(s rowScanner) (*model.Invoice, error) {
	var (
		inv                      model.Invoice
		due, notes, payID, refID sql.NullString
		payAmt, refAmt           sql.NullFloat64
		paidAt, refundedAt       sql.NullTime
		title                    sql.NullString
	)
	err := s.Scan(&inv.ID, &inv.EventID, &inv.InvoiceNumber, &inv.Amount, &inv.Status,
		&due, &notes,
		&payID, &payAmt, &paidAt, &refID, &refAmt, &refundedAt,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt, &title)
	if err != nil {
		return nil, err
	}
	inv.DueDate, inv.Notes = strPtr(due), strPtr(notes)
	inv.PaymentID, inv.PaymentAmount, inv.PaidAt = strPtr(payID), f64Ptr(payAmt), timePtr(paidAt)
	inv.RefundID, inv.RefundAmount, inv.RefundedAt = strPtr(refID), f64Ptr(refAmt), timePtr(refundedAt)
	inv.EventTitle = strPtr(title)
	inv.Items = []model.InvoiceItem{}
	return &inv, nil
}

// Create inserts the invoice and its items in one transaction.
func (r *InvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO invoices (event_id, invoice_number, amount, status, due_date, notes, created_by)
			 VALUES (?,?,?,?,?,?,?)`,
			inv.EventID, inv.InvoiceNumber, inv.Amount, inv.Status, inv.DueDate, inv.Notes, inv.CreatedBy)
		if err != nil {
			switch {
			case isDuplicateKey(err):
				return ErrDuplicate
			case isMissingReference(err):
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		inv.ID = uint64(id)
		for i := range inv.Items {
			it := &inv.Items[i]
			res, err := tx.ExecContext(ctx,
				"INSERT INTO invoice_items (invoice_id, description, quantity, unit_price) VALUES (?,?,?,?)",
				inv.ID, it.Description, it.Quantity, it.UnitPrice)
			if err != nil {
				return err
			}
			itemID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			it.ID, it.InvoiceID = uint64(itemID), inv.ID
		}
		return nil
	})
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, inv.ID)
	if err != nil {
		return err
	}
	*inv = *created
	return nil
}

// GetByID fetches one invoice with its items.
func (r *InvoiceRepo) GetByID(ctx context.Context, id uint64) (*model.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, invoiceSelect+" WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, []uint64{inv.ID})
	if err != nil {
		return nil, err
	}
	inv.Items = append(inv.Items, items[inv.ID]...)
	return inv, nil
}

// List returns invoices matching f, newest first, each with its items.
func (r *InvoiceRepo) List(ctx context.Context, f InvoiceFilter) ([]model.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != nil {
		where = append(where, "i.event_id = ?")
		args = append(args, *f.EventID)
	}
	if f.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, f.Status)
	}
	q := invoiceSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY i.created_at DESC, i.id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Invoice{}
	var ids []uint64
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = append(out[i].Items, items[out[i].ID]...)
	}
	return out, nil
}

func (r *InvoiceRepo) items(ctx context.Context, ids []uint64) (map[uint64][]model.InvoiceItem, error) {
	out := make(map[uint64][]model.InvoiceItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := "SELECT id, invoice_id, description, quantity, unit_price FROM invoice_items WHERE invoice_id IN (?" +
		strings.Repeat(",?", len(ids)-1) + ") ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[it.InvoiceID] = append(out[it.InvoiceID], it)
	}
	return out, rows.Err()
}

// WithinTx runs fn in a single transaction and commits when fn returns nil.
func (r *InvoiceRepo) WithinTx(ctx context.Context, fn func(InvoiceTx) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&invoiceTx{tx: tx})
	})
}

type invoiceTx struct{ tx *sql.Tx }

func (t *invoiceTx) Lock(ctx context.Context, id uint64) (*model.Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRowContext(ctx, invoiceSelect+" WHERE i.id = ? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

func (t *invoiceTx) MarkPaid(ctx context.Context, p *model.Payment, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE invoices SET status = 'paid', payment_id = ?, payment_amount = ?, paid_at = ?
		 WHERE id = ? AND status = 'pending'`,
		p.PaymentID, p.Amount, at.UTC(), p.InvoiceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	ins, err := t.tx.ExecContext(ctx,
		"INSERT INTO payments (invoice_id, payment_id, amount, method, created_at) VALUES (?,?,?,?,?)",
		p.InvoiceID, p.PaymentID, p.Amount, p.Method, at.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt = uint64(id), at.UTC()
	return nil
}

func (t *invoiceTx) MarkRefunded(ctx context.Context, rf *model.Refund, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE invoices SET status = 'refunded', refund_id = ?, refund_amount = ?, refunded_at = ?
		 WHERE id = ? AND status = 'paid'`,
		rf.RefundID, rf.Amount, at.UTC(), rf.InvoiceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	ins, err := t.tx.ExecContext(ctx,
		"INSERT INTO refunds (invoice_id, refund_id, amount, reason, created_at) VALUES (?,?,?,?,?)",
		rf.InvoiceID, rf.RefundID, rf.Amount, rf.Reason, at.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	rf.ID, rf.CreatedAt = uint64(id), at.UTC()
	return nil
}

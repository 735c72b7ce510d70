package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const billCols = `id, bill_number, patient_id, visit_id,
	subtotal, total_discount, total_tax, grand_total, paid_amount, balance_amount,
	status, payment_status, is_locked, locked_at, locked_by,
	patient_amount, insurance_amount, insurance_claim_id, insurance_status,
	discount_req_amount, discount_req_reason, discount_req_by, discount_req_at,
	discount_req_status, discount_decided_by, discount_decided_at, discount_rejection_reason,
	notes, version, created_at, updated_at`

func (r *billRepoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	var dAmount *float64
	var dReason, dBy, dStatus *string
	var dReq DiscountRequest
	err := row.Scan(&b.ID, &b.BillNumber, &b.PatientID, &b.VisitID,
		&b.Subtotal, &b.TotalDiscount, &b.TotalTax, &b.GrandTotal, &b.PaidAmount, &b.BalanceAmount,
		&b.Status, &b.PaymentStatus, &b.IsLocked, &b.LockedAt, &b.LockedBy,
		&b.PatientAmount, &b.InsuranceAmount, &b.InsuranceClaimID, &b.InsuranceStatus,
		&dAmount, &dReason, &dBy, &dReq.RequestedAt,
		&dStatus, &dReq.DecidedBy, &dReq.DecidedAt, &dReq.RejectionReason,
		&b.Notes, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: bill", ErrNotFound)
		}
		return nil, err
	}
	if dStatus != nil {
		dReq.Amount = *dAmount
		dReq.Reason = *dReason
		dReq.RequestedBy = *dBy
		dReq.Status = *dStatus
		b.Discount = &dReq
	}
	return &b, nil
}

const itemCols = `id, bill_id, item_type, item_ref, description,
	quantity, rate, amount, discount_amount, discount_percent, discount,
	tax_percent, tax, net_amount, is_system_generated, service_date, billed_at`

func (r *billRepoPG) loadItems(ctx context.Context, billID uuid.UUID) ([]Item, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM bill_items WHERE bill_id = $1 ORDER BY billed_at, id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.BillID, &it.ItemType, &it.ItemRef, &it.Description,
			&it.Quantity, &it.Rate, &it.Amount, &it.DiscountAmount, &it.DiscountPercent, &it.Discount,
			&it.TaxPercent, &it.Tax, &it.NetAmount, &it.IsSystemGenerated, &it.ServiceDate, &it.BilledAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *billRepoPG) insertItems(ctx context.Context, billID uuid.UUID, items []Item) error {
	for i := range items {
		it := &items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.BillID = billID
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bill_items (id, bill_id, item_type, item_ref, description,
				quantity, rate, amount, discount_amount, discount_percent, discount,
				tax_percent, tax, net_amount, is_system_generated, service_date, billed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			it.ID, it.BillID, it.ItemType, it.ItemRef, it.Description,
			it.Quantity, it.Rate, it.Amount, it.DiscountAmount, it.DiscountPercent, it.Discount,
			it.TaxPercent, it.Tax, it.NetAmount, it.IsSystemGenerated, it.ServiceDate, it.BilledAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	b.Version = 1
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var dAmount *float64
		var dReason, dBy, dStatus, dDecidedBy, dRejection *string
		var dRequestedAt, dDecidedAt interface{}
		if b.Discount != nil {
			dAmount = &b.Discount.Amount
			dReason = &b.Discount.Reason
			dBy = &b.Discount.RequestedBy
			dStatus = &b.Discount.Status
			dDecidedBy = b.Discount.DecidedBy
			dRejection = b.Discount.RejectionReason
			dRequestedAt = b.Discount.RequestedAt
			dDecidedAt = b.Discount.DecidedAt
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bills (id, bill_number, patient_id, visit_id,
				subtotal, total_discount, total_tax, grand_total, paid_amount, balance_amount,
				status, payment_status, is_locked, locked_at, locked_by,
				patient_amount, insurance_amount, insurance_claim_id, insurance_status,
				discount_req_amount, discount_req_reason, discount_req_by, discount_req_at,
				discount_req_status, discount_decided_by, discount_decided_at, discount_rejection_reason,
				notes, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
			b.ID, b.BillNumber, b.PatientID, b.VisitID,
			b.Subtotal, b.TotalDiscount, b.TotalTax, b.GrandTotal, b.PaidAmount, b.BalanceAmount,
			b.Status, b.PaymentStatus, b.IsLocked, b.LockedAt, b.LockedBy,
			b.PatientAmount, b.InsuranceAmount, b.InsuranceClaimID, b.InsuranceStatus,
			dAmount, dReason, dBy, dRequestedAt,
			dStatus, dDecidedBy, dDecidedAt, dRejection,
			b.Notes, b.Version)
		if err != nil {
			return err
		}
		return r.insertItems(ctx, b.ID, b.Items)
	})
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM bills WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.loadItems(ctx, b.ID)
	return b, err
}

func (r *billRepoPG) GetByNumber(ctx context.Context, billNumber string) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM bills WHERE bill_number = $1`, billNumber))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.loadItems(ctx, b.ID)
	return b, err
}

// Update writes the bill row guarded by the version column and replaces the
// line items. A failed guard means another writer got there first.
func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var dAmount *float64
		var dReason, dBy, dStatus, dDecidedBy, dRejection *string
		var dRequestedAt, dDecidedAt interface{}
		if b.Discount != nil {
			dAmount = &b.Discount.Amount
			dReason = &b.Discount.Reason
			dBy = &b.Discount.RequestedBy
			dStatus = &b.Discount.Status
			dDecidedBy = b.Discount.DecidedBy
			dRejection = b.Discount.RejectionReason
			dRequestedAt = b.Discount.RequestedAt
			dDecidedAt = b.Discount.DecidedAt
		}

		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE bills SET
				subtotal=$3, total_discount=$4, total_tax=$5, grand_total=$6,
				paid_amount=$7, balance_amount=$8,
				status=$9, payment_status=$10, is_locked=$11, locked_at=$12, locked_by=$13,
				patient_amount=$14, insurance_amount=$15, insurance_claim_id=$16, insurance_status=$17,
				discount_req_amount=$18, discount_req_reason=$19, discount_req_by=$20, discount_req_at=$21,
				discount_req_status=$22, discount_decided_by=$23, discount_decided_at=$24, discount_rejection_reason=$25,
				notes=$26, version = version + 1, updated_at=NOW()
			WHERE id = $1 AND version = $2`,
			b.ID, b.Version,
			b.Subtotal, b.TotalDiscount, b.TotalTax, b.GrandTotal,
			b.PaidAmount, b.BalanceAmount,
			b.Status, b.PaymentStatus, b.IsLocked, b.LockedAt, b.LockedBy,
			b.PatientAmount, b.InsuranceAmount, b.InsuranceClaimID, b.InsuranceStatus,
			dAmount, dReason, dBy, dRequestedAt,
			dStatus, dDecidedBy, dDecidedAt, dRejection,
			b.Notes)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := r.conn(ctx).QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM bills WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: bill", ErrNotFound)
			}
			return fmt.Errorf("%w: bill %s was modified concurrently", ErrVersionConflict, b.BillNumber)
		}
		b.Version++

		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, b.ID); err != nil {
			return err
		}
		return r.insertItems(ctx, b.ID, b.Items)
	})
}

func (r *billRepoPG) GetLatestDraftByPatient(ctx context.Context, patientID uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `
		SELECT `+billCols+` FROM bills
		WHERE patient_id = $1 AND status = 'draft' AND payment_status != 'cancelled'
		ORDER BY created_at DESC LIMIT 1`, patientID))
	if err != nil {
		return nil, err
	}
	b.Items, err = r.loadItems(ctx, b.ID)
	return b, err
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bills WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+billCols+` FROM bills WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var bills []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, b := range bills {
		if b.Items, err = r.loadItems(ctx, b.ID); err != nil {
			return nil, 0, err
		}
	}
	return bills, total, nil
}

func (r *billRepoPG) NextSequence(ctx context.Context, year, month int) (int64, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill_sequences (year, month, seq) VALUES ($1, $2, 1)
		ON CONFLICT (year, month) DO UPDATE SET seq = bill_sequences.seq + 1
		RETURNING seq`, year, month).Scan(&seq)
	return seq, err
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill_payments (id, bill_id, amount, mode, reference, notes, received_by, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.BillID, p.Amount, p.Mode, p.Reference, p.Notes, p.ReceivedBy, p.ReceivedAt)
	return err
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, amount, mode, reference, notes, received_by, received_at
		FROM bill_payments WHERE bill_id = $1 ORDER BY received_at`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Mode, &p.Reference, &p.Notes,
			&p.ReceivedBy, &p.ReceivedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// =========== Audit Repository ===========

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *auditRepoPG) Append(ctx context.Context, e *AuditEntry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill_audit_trail (id, bill_id, action, performed_by, performed_at, details)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.BillID, e.Action, e.PerformedBy, e.PerformedAt, e.Details)
	return err
}

func (r *auditRepoPG) ListByBill(ctx context.Context, billID uuid.UUID, limit, offset int) ([]*AuditEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bill_audit_trail WHERE bill_id = $1`, billID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, action, performed_by, performed_at, details
		FROM bill_audit_trail WHERE bill_id = $1
		ORDER BY performed_at DESC LIMIT $2 OFFSET $3`, billID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.BillID, &e.Action, &e.PerformedBy, &e.PerformedAt, &e.Details); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

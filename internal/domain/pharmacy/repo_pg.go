package pharmacy

import (
	"context"
	"encoding/json"
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

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

func (r *batchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const batchCols = `id, medicine_id, medicine_name, batch_number, expiry_date,
	quantity, unit_price, status, location, version, created_at, updated_at`

func scanBatch(row pgx.Row) (*InventoryBatch, error) {
	var b InventoryBatch
	err := row.Scan(&b.ID, &b.MedicineID, &b.MedicineName, &b.BatchNumber, &b.ExpiryDate,
		&b.Quantity, &b.UnitPrice, &b.Status, &b.Location, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: batch", ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

func (r *batchRepoPG) Create(ctx context.Context, b *InventoryBatch) error {
	b.ID = uuid.New()
	b.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pharmacy_batches (id, medicine_id, medicine_name, batch_number, expiry_date,
			quantity, unit_price, status, location, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.MedicineID, b.MedicineName, b.BatchNumber, b.ExpiryDate,
		b.Quantity, b.UnitPrice, b.Status, b.Location, b.Version)
	return err
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InventoryBatch, error) {
	return scanBatch(r.conn(ctx).QueryRow(ctx,
		`SELECT `+batchCols+` FROM pharmacy_batches WHERE id = $1`, id))
}

func (r *batchRepoPG) Update(ctx context.Context, b *InventoryBatch) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_batches SET medicine_name=$3, expiry_date=$4, quantity=$5,
			unit_price=$6, status=$7, location=$8, version = version + 1, updated_at=NOW()
		WHERE id = $1 AND version = $2`,
		b.ID, b.Version, b.MedicineName, b.ExpiryDate, b.Quantity, b.UnitPrice, b.Status, b.Location)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch %s", ErrVersionConflict, b.BatchNumber)
	}
	b.Version++
	return nil
}

func (r *batchRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM pharmacy_batches
		WHERE medicine_id = $1 ORDER BY expiry_date`, medicineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []*InventoryBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *batchRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*InventoryBatch, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM pharmacy_batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT `+batchCols+` FROM pharmacy_batches`+where+
		` ORDER BY expiry_date LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var batches []*InventoryBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

// DecrementBatch takes stock out of a batch. The predicate guards both the
// version and the quantity floor, so a concurrent dispense that drained the
// batch surfaces as a conflict rather than negative stock.
func (r *batchRepoPG) DecrementBatch(ctx context.Context, id uuid.UUID, quantity, version int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_batches SET quantity = quantity - $3, version = version + 1, updated_at=NOW()
		WHERE id = $1 AND version = $2 AND quantity >= $3`,
		id, version, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch stock changed concurrently", ErrVersionConflict)
	}
	return nil
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, patient_id, visit_id, prescribed_by, status, notes, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.VisitID, &p.PrescribedBy, &p.Status, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: prescription", ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) loadItems(ctx context.Context, prescriptionID uuid.UUID) ([]PrescriptionItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, dosage, frequency, duration,
			quantity, dispensed_qty, instructions
		FROM prescription_items WHERE prescription_id = $1 ORDER BY id`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PrescriptionItem
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName,
			&it.Dosage, &it.Frequency, &it.Duration, &it.Quantity, &it.DispensedQty, &it.Instructions); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO prescriptions (id, patient_id, visit_id, prescribed_by, status, notes)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			p.ID, p.PatientID, p.VisitID, p.PrescribedBy, p.Status, p.Notes)
		if err != nil {
			return err
		}
		for i := range p.Items {
			it := &p.Items[i]
			it.ID = uuid.New()
			it.PrescriptionID = p.ID
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO prescription_items (id, prescription_id, medicine_id, medicine_name,
					dosage, frequency, duration, quantity, dispensed_qty, instructions)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				it.ID, it.PrescriptionID, it.MedicineID, it.MedicineName,
				it.Dosage, it.Frequency, it.Duration, it.Quantity, it.DispensedQty, it.Instructions); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	p.Items, err = r.loadItems(ctx, p.ID)
	return p, err
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE prescriptions SET status=$2, notes=$3, updated_at=NOW() WHERE id = $1`,
			p.ID, p.Status, p.Notes); err != nil {
			return err
		}
		for i := range p.Items {
			it := &p.Items[i]
			if _, err := r.conn(ctx).Exec(ctx, `
				UPDATE prescription_items SET dispensed_qty=$2 WHERE id = $1`,
				it.ID, it.DispensedQty); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var prescriptions []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, p := range prescriptions {
		if p.Items, err = r.loadItems(ctx, p.ID); err != nil {
			return nil, 0, err
		}
	}
	return prescriptions, total, nil
}

// =========== Dispense Repository ===========

type dispenseRepoPG struct{ pool *pgxpool.Pool }

func NewDispenseRepoPG(pool *pgxpool.Pool) DispenseRepository { return &dispenseRepoPG{pool: pool} }

func (r *dispenseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const dispenseCols = `id, dispense_number, prescription_id, patient_id, dispensed_by, status,
	total_amount, discount, net_amount, dispensed_at, created_at`

func scanDispense(row pgx.Row) (*Dispense, error) {
	var d Dispense
	err := row.Scan(&d.ID, &d.DispenseNumber, &d.PrescriptionID, &d.PatientID, &d.DispensedBy,
		&d.Status, &d.TotalAmount, &d.Discount, &d.NetAmount, &d.DispensedAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: dispense", ErrNotFound)
		}
		return nil, err
	}
	return &d, nil
}

func (r *dispenseRepoPG) Create(ctx context.Context, d *Dispense) error {
	d.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO dispenses (id, dispense_number, prescription_id, patient_id, dispensed_by,
				status, total_amount, discount, net_amount, dispensed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			d.ID, d.DispenseNumber, d.PrescriptionID, d.PatientID, d.DispensedBy,
			d.Status, d.TotalAmount, d.Discount, d.NetAmount, d.DispensedAt)
		if err != nil {
			return err
		}
		for i := range d.Items {
			it := &d.Items[i]
			it.ID = uuid.New()
			it.DispenseID = d.ID
			allocs, err := json.Marshal(it.Batches)
			if err != nil {
				return err
			}
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO dispense_items (id, dispense_id, medicine_id, medicine_name,
					prescribed_quantity, dispensed_quantity, unit_price, total_price, batches)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				it.ID, it.DispenseID, it.MedicineID, it.MedicineName,
				it.PrescribedQuantity, it.DispensedQuantity, it.UnitPrice, it.TotalPrice, allocs); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *dispenseRepoPG) loadItems(ctx context.Context, dispenseID uuid.UUID) ([]DispenseItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, dispense_id, medicine_id, medicine_name, prescribed_quantity,
			dispensed_quantity, unit_price, total_price, batches
		FROM dispense_items WHERE dispense_id = $1 ORDER BY id`, dispenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DispenseItem
	for rows.Next() {
		var it DispenseItem
		var allocs []byte
		if err := rows.Scan(&it.ID, &it.DispenseID, &it.MedicineID, &it.MedicineName,
			&it.PrescribedQuantity, &it.DispensedQuantity, &it.UnitPrice, &it.TotalPrice, &allocs); err != nil {
			return nil, err
		}
		if len(allocs) > 0 {
			if err := json.Unmarshal(allocs, &it.Batches); err != nil {
				return nil, err
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *dispenseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	d, err := scanDispense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dispenseCols+` FROM dispenses WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	d.Items, err = r.loadItems(ctx, d.ID)
	return d, err
}

func (r *dispenseRepoPG) GetByNumber(ctx context.Context, dispenseNumber string) (*Dispense, error) {
	d, err := scanDispense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dispenseCols+` FROM dispenses WHERE dispense_number = $1`, dispenseNumber))
	if err != nil {
		return nil, err
	}
	d.Items, err = r.loadItems(ctx, d.ID)
	return d, err
}

func (r *dispenseRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Dispense, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+dispenseCols+` FROM dispenses WHERE prescription_id = $1 ORDER BY dispensed_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dispenses []*Dispense
	for rows.Next() {
		d, err := scanDispense(rows)
		if err != nil {
			return nil, err
		}
		dispenses = append(dispenses, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, d := range dispenses {
		if d.Items, err = r.loadItems(ctx, d.ID); err != nil {
			return nil, err
		}
	}
	return dispenses, nil
}

func (r *dispenseRepoPG) NextSequence(ctx context.Context, year, month, day int) (int64, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dispense_sequences (year, month, day, seq) VALUES ($1, $2, $3, 1)
		ON CONFLICT (year, month, day) DO UPDATE SET seq = dispense_sequences.seq + 1
		RETURNING seq`, year, month, day).Scan(&seq)
	return seq, err
}

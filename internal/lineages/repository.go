package lineages

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-mutual/sankofa/internal/platform/db"
	"github.com/sankofa-mutual/sankofa/internal/settlement"
)

// Repository provides PostgreSQL backed persistence for lineage settlement.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates a missing lineage or due.
var ErrNotFound = errors.New("lineages: not found")

// ErrAllocationExceedsDue indicates a payment larger than the due's remaining.
var ErrAllocationExceedsDue = errors.New("lineages: allocation exceeds due remaining")

// ListFamilies returns all families, parents before children.
func (r *Repository) ListFamilies(ctx context.Context) ([]Family, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, parent_id FROM families ORDER BY parent_id NULLS FIRST, name`)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var out []Family
	for rows.Next() {
		var f Family
		var parent pgtype.Int8
		if err := rows.Scan(&f.ID, &f.Name, &parent); err != nil {
			return nil, err
		}
		if parent.Valid {
			id := parent.Int64
			f.ParentID = &id
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListLineages returns the lineages of one family.
func (r *Repository) ListLineages(ctx context.Context, familyID int64) ([]Lineage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, family_id FROM lineages WHERE family_id = $1 ORDER BY name`,
		familyID)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var out []Lineage
	for rows.Next() {
		var l Lineage
		if err := rows.Scan(&l.ID, &l.Name, &l.FamilyID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLineage retrieves one lineage by id.
func (r *Repository) GetLineage(ctx context.Context, id int64) (Lineage, error) {
	var l Lineage
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, family_id FROM lineages WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.FamilyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lineage{}, ErrNotFound
		}
		return Lineage{}, wrapConnErr(err)
	}
	return l, nil
}

// ListOpenDues returns the lineage's dues with an unpaid remainder, ordered by
// due date then larger remaining first.
func (r *Repository) ListOpenDues(ctx context.Context, lineageID int64) ([]settlement.Due, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, motive, amount_due, amount_paid, due_date, related_event_id
		FROM lineage_dues
		WHERE lineage_id = $1 AND amount_paid < amount_due
		ORDER BY due_date ASC, (amount_due - amount_paid) DESC`, lineageID)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var out []settlement.Due
	for rows.Next() {
		var d settlement.Due
		var eventID pgtype.Int8
		if err := rows.Scan(&d.ID, &d.Motive, &d.AmountDue, &d.AmountPaid, &d.DueDate, &eventID); err != nil {
			return nil, err
		}
		if eventID.Valid {
			id := eventID.Int64
			d.RelatedEventID = &id
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DuesTotals returns the lineage's lifetime due and paid totals.
func (r *Repository) DuesTotals(ctx context.Context, lineageID int64) (totalDue, totalPaid float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_due), 0), COALESCE(SUM(amount_paid), 0)
		FROM lineage_dues WHERE lineage_id = $1`, lineageID).
		Scan(&totalDue, &totalPaid)
	if err != nil {
		return 0, 0, wrapConnErr(err)
	}
	return totalDue, totalPaid, nil
}

// InsertPayment persists one allocation line and bumps the due's paid amount
// in the same transaction. Cross-line atomicity is deliberately absent: each
// line of a batch is its own transaction.
func (r *Repository) InsertPayment(ctx context.Context, line settlement.LineSubmission) (settlement.PaymentRecord, error) {
	var record settlement.PaymentRecord
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE lineage_dues
			SET amount_paid = amount_paid + $2, updated_at = NOW()
			WHERE id = $1 AND lineage_id = $3 AND amount_paid + $2 <= amount_due`,
			line.DueID, line.Amount, line.OwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: due %d", ErrAllocationExceedsDue, line.DueID)
		}

		return tx.QueryRow(ctx, `
			INSERT INTO lineage_payments (due_id, lineage_id, amount, mode, reference, comment, paid_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'RECORDED', NOW())
			RETURNING id, status`,
			line.DueID, line.OwnerID, line.Amount, string(line.Mode), line.Reference, line.Comment, line.Date).
			Scan(&record.ID, &record.Status)
	})
	if err != nil {
		return settlement.PaymentRecord{}, wrapConnErr(err)
	}

	record.DueID = line.DueID
	record.Amount = line.Amount
	record.Mode = line.Mode
	record.Reference = line.Reference
	record.Date = line.Date
	return record, nil
}

func wrapConnErr(err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", settlement.ErrUnavailable, err)
	}
	return err
}

package members

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

// Repository provides PostgreSQL backed persistence for member settlement.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates a missing member or due.
var ErrNotFound = errors.New("members: not found")

// ErrAllocationExceedsDue indicates a payment larger than the due's remaining.
var ErrAllocationExceedsDue = errors.New("members: allocation exceeds due remaining")

// ListCategories returns all member categories.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM member_categories ORDER BY name`)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMembers returns the members of one category.
func (r *Repository) ListMembers(ctx context.Context, categoryID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, full_name, category_id FROM members WHERE category_id = $1 ORDER BY full_name`,
		categoryID)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMember retrieves one member by id.
func (r *Repository) GetMember(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, category_id FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.FullName, &m.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, wrapConnErr(err)
	}
	return m, nil
}

// ListOpenDues returns the member's dues with an unpaid remainder, ordered by
// due date then larger remaining first.
func (r *Repository) ListOpenDues(ctx context.Context, memberID int64) ([]settlement.Due, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, motive, amount_due, amount_paid, due_date, related_event_id
		FROM member_dues
		WHERE member_id = $1 AND amount_paid < amount_due
		ORDER BY due_date ASC, (amount_due - amount_paid) DESC`, memberID)
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

// DuesTotals returns the member's lifetime due and paid totals.
func (r *Repository) DuesTotals(ctx context.Context, memberID int64) (totalDue, totalPaid float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_due), 0), COALESCE(SUM(amount_paid), 0)
		FROM member_dues WHERE member_id = $1`, memberID).
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
			UPDATE member_dues
			SET amount_paid = amount_paid + $2, updated_at = NOW()
			WHERE id = $1 AND member_id = $3 AND amount_paid + $2 <= amount_due`,
			line.DueID, line.Amount, line.OwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: due %d", ErrAllocationExceedsDue, line.DueID)
		}

		return tx.QueryRow(ctx, `
			INSERT INTO member_payments (due_id, member_id, amount, mode, reference, comment, paid_at, status, created_at)
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

// wrapConnErr marks connection-level failures as systemic so the batch
// controller can abort instead of burning through every line.
func wrapConnErr(err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", settlement.ErrUnavailable, err)
	}
	return err
}

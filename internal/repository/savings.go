package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/marginkit/challenge-go/internal/model"
)

// SavingsRepository appends and lists savings deposits.
type SavingsRepository struct {
	db *sql.DB
}

// NewSavingsRepository creates a new SavingsRepository.
func NewSavingsRepository(db *sql.DB) *SavingsRepository {
	return &SavingsRepository{db: db}
}

const savingsColumns = `id, user_id, amount_cents, entry_date, created_at`

// Add stores a deposit made on date and returns it with its ID.
func (r *SavingsRepository) Add(ctx context.Context, userID string, amountCents int64, date time.Time) (*model.SavingsEntry, error) {
	query, args, err := buildAddSavings(userID, amountCents, date)
	if err != nil {
		return nil, fmt.Errorf("building savings insert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, mapError(err)
	}

	entry, err := scanSavings(tx.QueryRowContext(ctx,
		`SELECT `+savingsColumns+` FROM savings_entries WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return entry, nil
}

// ListByUser retrieves all deposits of a user, oldest first.
func (r *SavingsRepository) ListByUser(ctx context.Context, userID string) ([]model.SavingsEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+savingsColumns+` FROM savings_entries WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []model.SavingsEntry
	for rows.Next() {
		e, err := scanSavings(rows)
		if err != nil {
			return nil, mapError(err)
		}
		entries = append(entries, *e)
	}
	return entries, mapError(rows.Err())
}

func scanSavings(row rowScanner) (*model.SavingsEntry, error) {
	var (
		e    model.SavingsEntry
		date time.Time
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.AmountCents, &date, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Date = date.Format("2006-01-02")
	return &e, nil
}

func buildAddSavings(userID string, amountCents int64, date time.Time) (string, []any, error) {
	return sq.Insert("savings_entries").
		Columns("user_id", "amount_cents", "entry_date").
		Values(userID, amountCents, date.Format("2006-01-02")).
		ToSql()
}

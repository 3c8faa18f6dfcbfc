package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/marginkit/challenge-go/internal/model"
)

var ErrRecordNotFound = errors.New("check-in record not found")

const checkinColumns = `user_id, day, completed, stress, sleep, steps, breathing, meal, notes, saved_at`

// CheckinRepository reads and merge-writes check-in records keyed by (user, day).
type CheckinRepository struct {
	db *sql.DB
}

// NewCheckinRepository creates a new CheckinRepository.
func NewCheckinRepository(db *sql.DB) *CheckinRepository {
	return &CheckinRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckin(row rowScanner) (*model.CheckinRecord, error) {
	var (
		rec   model.CheckinRecord
		notes sql.NullString
	)
	if err := row.Scan(
		&rec.UserID, &rec.Day, &rec.Completed, &rec.Stress, &rec.Sleep,
		&rec.Steps, &rec.Breathing, &rec.Meal, &notes, &rec.SavedAt,
	); err != nil {
		return nil, err
	}
	rec.Notes = notes.String
	return &rec, nil
}

// Get retrieves the record for (userID, day).
func (r *CheckinRepository) Get(ctx context.Context, userID string, day int) (*model.CheckinRecord, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE user_id = ? AND day = ?`

	rec, err := scanCheckin(r.db.QueryRowContext(ctx, query, userID, day))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, mapError(err)
	}
	return rec, nil
}

// MergeSet upserts the fields present in patch, leaving the others as stored,
// stamps saved_at with the server clock and returns the resulting record.
func (r *CheckinRepository) MergeSet(ctx context.Context, userID string, day int, patch model.CheckinPatch) (*model.CheckinRecord, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("merge-set: empty patch: %w", model.ErrValidation)
	}

	query, args, err := buildMergeSet(userID, day, patch)
	if err != nil {
		return nil, fmt.Errorf("building merge-set: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError(err)
	}

	rec, err := scanCheckin(tx.QueryRowContext(ctx,
		`SELECT `+checkinColumns+` FROM checkins WHERE user_id = ? AND day = ?`, userID, day))
	if err != nil {
		return nil, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

// ListByUser retrieves all records of a user ordered by day.
func (r *CheckinRepository) ListByUser(ctx context.Context, userID string) ([]model.CheckinRecord, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE user_id = ? ORDER BY day ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []model.CheckinRecord
	for rows.Next() {
		rec, err := scanCheckin(rows)
		if err != nil {
			return nil, mapError(err)
		}
		records = append(records, *rec)
	}
	return records, mapError(rows.Err())
}

// buildMergeSet renders the upsert for the columns present in patch.
func buildMergeSet(userID string, day int, p model.CheckinPatch) (string, []any, error) {
	cols := []string{"user_id", "day"}
	vals := []any{userID, day}
	var updates []string

	set := func(col string, v any) {
		cols = append(cols, col)
		vals = append(vals, v)
		updates = append(updates, col+" = VALUES("+col+")")
	}
	if p.Completed != nil {
		set("completed", *p.Completed)
	}
	if p.Stress != nil {
		set("stress", *p.Stress)
	}
	if p.Sleep != nil {
		set("sleep", *p.Sleep)
	}
	if p.Steps != nil {
		set("steps", *p.Steps)
	}
	if p.Breathing != nil {
		set("breathing", *p.Breathing)
	}
	if p.Meal != nil {
		set("meal", *p.Meal)
	}
	if p.Notes != nil {
		set("notes", *p.Notes)
	}
	set("saved_at", sq.Expr("CURRENT_TIMESTAMP(3)"))

	return sq.Insert("checkins").
		Columns(cols...).
		Values(vals...).
		Suffix("ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")).
		ToSql()
}

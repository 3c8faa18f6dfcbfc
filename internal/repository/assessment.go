package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/marginkit/challenge-go/internal/model"
)

var ErrAssessmentNotFound = errors.New("assessment not found")

// AssessmentRepository stores one self-assessment per (user, kind). Saving a
// kind again replaces the earlier answers.
type AssessmentRepository struct {
	db *sql.DB
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Save upserts the answers for (userID, kind) and returns the stored assessment.
func (r *AssessmentRepository) Save(ctx context.Context, userID string, kind model.AssessmentKind, responses map[string]int) (*model.Assessment, error) {
	query, args, err := buildSaveAssessment(userID, kind, responses)
	if err != nil {
		return nil, fmt.Errorf("building assessment upsert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError(err)
	}
	a, err := scanAssessment(tx.QueryRowContext(ctx, selectAssessment, userID, string(kind)))
	if err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

// Get retrieves the assessment of the given kind.
func (r *AssessmentRepository) Get(ctx context.Context, userID string, kind model.AssessmentKind) (*model.Assessment, error) {
	a, err := scanAssessment(r.db.QueryRowContext(ctx, selectAssessment, userID, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, mapError(err)
	}
	return a, nil
}

const selectAssessment = `SELECT user_id, kind, responses, completed_at FROM assessments WHERE user_id = ? AND kind = ?`

func scanAssessment(row rowScanner) (*model.Assessment, error) {
	var (
		a       model.Assessment
		kind    string
		payload []byte
	)
	if err := row.Scan(&a.UserID, &kind, &payload, &a.CompletedAt); err != nil {
		return nil, err
	}
	a.Kind = model.AssessmentKind(kind)
	if err := json.Unmarshal(payload, &a.Responses); err != nil {
		return nil, fmt.Errorf("decoding responses: %w", err)
	}
	return &a, nil
}

func buildSaveAssessment(userID string, kind model.AssessmentKind, responses map[string]int) (string, []any, error) {
	payload, err := json.Marshal(responses)
	if err != nil {
		return "", nil, err
	}
	return sq.Insert("assessments").
		Columns("user_id", "kind", "responses", "completed_at").
		Values(userID, string(kind), string(payload), sq.Expr("CURRENT_TIMESTAMP(3)")).
		Suffix("ON DUPLICATE KEY UPDATE responses = VALUES(responses), completed_at = VALUES(completed_at)").
		ToSql()
}

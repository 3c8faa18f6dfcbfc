package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marginkit/challenge-go/internal/model"
)

// DraftStore keeps one unsaved check-in per (user, day) on the device.
type DraftStore struct {
	db  *sql.DB
	log *slog.Logger
}

// Get returns the draft for (userID, day), or nil if there is none.
// Unreadable payloads count as absent.
func (s *DraftStore) Get(ctx context.Context, userID string, day int) (*model.CheckinDraft, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM drafts WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading draft: %w", err)
	}

	var draft model.CheckinDraft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		s.log.WarnContext(ctx, "ignoring malformed draft", "user_id", userID, "day", day, "error", err)
		return nil, nil
	}
	if err := draft.Fields.Validate(); err != nil {
		s.log.WarnContext(ctx, "ignoring invalid draft", "user_id", userID, "day", day, "error", err)
		return nil, nil
	}
	return &draft, nil
}

// Set creates or overwrites the draft for (userID, day).
func (s *DraftStore) Set(ctx context.Context, userID string, day int, draft model.CheckinDraft) error {
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (user_id, day, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		userID, day, string(payload), draft.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("writing draft: %w", err)
	}
	return nil
}

// Clear removes the draft for (userID, day). Clearing a missing draft is not
// an error.
func (s *DraftStore) Clear(ctx context.Context, userID string, day int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM drafts WHERE user_id = ? AND day = ?`, userID, day,
	); err != nil {
		return fmt.Errorf("clearing draft: %w", err)
	}
	return nil
}

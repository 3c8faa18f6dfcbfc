package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
)

var (
	ErrSaveInProgress  = errors.New("a save for this day is already in progress")
	ErrDayNotReady     = errors.New("day is not loaded")
	ErrStaleCompletion = errors.New("operation superseded by a newer view")
	ErrSessionClosed   = errors.New("session closed")
)

// RecordGateway is the remote store of confirmed check-ins. Get returns
// repository.ErrRecordNotFound when no record exists.
type RecordGateway interface {
	Get(ctx context.Context, userID string, day int) (*model.CheckinRecord, error)
	MergeSet(ctx context.Context, userID string, day int, patch model.CheckinPatch) (*model.CheckinRecord, error)
}

// DraftStore keeps unsaved check-ins on the device. Get returns nil when no
// usable draft exists.
type DraftStore interface {
	Get(ctx context.Context, userID string, day int) (*model.CheckinDraft, error)
	Set(ctx context.Context, userID string, day int, draft model.CheckinDraft) error
	Clear(ctx context.Context, userID string, day int) error
}

// State is the display state of the active day.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateShowingRemote
	StateShowingDraft
	StateShowingBlank
	StateEditing
	StateSaving
	StateSaved
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateLoading:       "loading",
	StateShowingRemote: "showing_remote",
	StateShowingDraft:  "showing_draft",
	StateShowingBlank:  "showing_blank",
	StateEditing:       "editing",
	StateSaving:        "saving",
	StateSaved:         "saved",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a snapshot of the check-in form for the active day.
type View struct {
	Day     int                 `json:"day"`
	State   State               `json:"state"`
	Fields  model.CheckinFields `json:"fields"`
	SavedAt *time.Time          `json:"saved_at,omitempty"`
}

// Reconciler decides what the check-in form shows for one session and keeps
// the device draft, the remote record and the form consistent.
//
// Every operation that suspends on I/O stamps the view generation before the
// call and drops its result if the generation or session changed meanwhile.
type Reconciler struct {
	logger    *slog.Logger
	sessionID string
	userID    string
	gateway   RecordGateway
	drafts    DraftStore
	now       func() time.Time

	enterMu sync.Mutex // serializes EnterDay
	draftMu sync.Mutex // orders draft writes against clears; taken before mu

	mu      sync.Mutex
	gen     uint64
	closed  bool
	day     int
	state   State
	fields  model.CheckinFields
	savedAt *time.Time
	saving  map[int]bool
}

// NewReconciler creates a Reconciler bound to one signed-in session.
func NewReconciler(logger *slog.Logger, sessionID, userID string, gateway RecordGateway, drafts DraftStore) *Reconciler {
	return &Reconciler{
		logger:    logger.With("session_id", sessionID, "user_id", userID),
		sessionID: sessionID,
		userID:    userID,
		gateway:   gateway,
		drafts:    drafts,
		now:       time.Now,
		fields:    model.DefaultCheckinFields(),
		saving:    make(map[int]bool),
	}
}

// SessionID returns the session the reconciler belongs to.
func (r *Reconciler) SessionID() string { return r.sessionID }

// UserID returns the participant the reconciler acts for.
func (r *Reconciler) UserID() string { return r.userID }

// EnterDay loads the form for day. A stored record wins over a draft and
// clears it; otherwise the draft is shown, or the defaults when there is none.
// A failed load leaves the draft untouched and the day unloaded. A day whose
// save is still in flight cannot be entered.
func (r *Reconciler) EnterDay(ctx context.Context, day int) (View, error) {
	if err := validateDay(day); err != nil {
		return r.View(), err
	}

	r.enterMu.Lock()
	defer r.enterMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	// Reloading a day while its save is in flight would show the old record
	// and clear the draft the save may still need.
	if r.saving[day] {
		defer r.mu.Unlock()
		return r.viewLocked(), ErrSaveInProgress
	}
	r.gen++
	gen := r.gen
	r.day = day
	r.state = StateLoading
	r.fields = model.DefaultCheckinFields()
	r.savedAt = nil
	r.mu.Unlock()

	rec, err := r.gateway.Get(ctx, r.userID, day)
	switch {
	case err == nil:
		return r.showRemote(ctx, gen, rec)
	case errors.Is(err, repository.ErrRecordNotFound):
	default:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stale(gen) {
			return r.viewLocked(), ErrStaleCompletion
		}
		r.state = StateIdle
		r.logger.WarnContext(ctx, "loading check-in failed", "day", day, "error", err)
		return r.viewLocked(), fmt.Errorf("loading day %d: %w", day, err)
	}

	draft, err := r.drafts.Get(ctx, r.userID, day)
	if err != nil {
		r.logger.WarnContext(ctx, "reading draft failed, treating as absent", "day", day, "error", err)
		draft = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale(gen) {
		return r.viewLocked(), ErrStaleCompletion
	}
	if draft != nil {
		r.state = StateShowingDraft
		r.fields = draft.Fields
	} else {
		r.state = StateShowingBlank
	}
	return r.viewLocked(), nil
}

func (r *Reconciler) showRemote(ctx context.Context, gen uint64, rec *model.CheckinRecord) (View, error) {
	r.draftMu.Lock()
	defer r.draftMu.Unlock()

	r.mu.Lock()
	if r.stale(gen) {
		defer r.mu.Unlock()
		return r.viewLocked(), ErrStaleCompletion
	}
	r.state = StateShowingRemote
	r.fields = rec.Fields()
	savedAt := rec.SavedAt
	r.savedAt = &savedAt
	view := r.viewLocked()
	r.mu.Unlock()

	// An orphaned draft is overwritten by the next edit anyway.
	if err := r.drafts.Clear(ctx, r.userID, rec.Day); err != nil {
		r.logger.WarnContext(ctx, "clearing superseded draft failed", "day", rec.Day, "error", err)
	}
	return view, nil
}

// FieldChange records a new form snapshot and mirrors it to the draft store.
func (r *Reconciler) FieldChange(ctx context.Context, day int, fields model.CheckinFields) (View, error) {
	if err := validateDay(day); err != nil {
		return r.View(), err
	}
	if err := fields.Validate(); err != nil {
		return r.View(), err
	}

	r.draftMu.Lock()
	defer r.draftMu.Unlock()

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return View{}, ErrSessionClosed
	case r.saving[day]:
		defer r.mu.Unlock()
		return r.viewLocked(), ErrSaveInProgress
	case day != r.day || r.state == StateIdle || r.state == StateLoading:
		defer r.mu.Unlock()
		return r.viewLocked(), ErrDayNotReady
	}
	r.state = StateEditing
	r.fields = fields
	view := r.viewLocked()
	r.mu.Unlock()

	if err := r.drafts.Set(ctx, r.userID, day, model.CheckinDraft{Fields: fields, UpdatedAt: r.now().UTC()}); err != nil {
		return view, fmt.Errorf("writing draft: %w", err)
	}
	return view, nil
}

// Submit merge-writes the current form as the day's record. At most one save
// per day is in flight; a second Submit returns ErrSaveInProgress without
// touching the gateway. On failure the form returns to editing and the draft
// is kept.
func (r *Reconciler) Submit(ctx context.Context, day int) (View, error) {
	if err := validateDay(day); err != nil {
		return r.View(), err
	}

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return View{}, ErrSessionClosed
	case r.saving[day]:
		defer r.mu.Unlock()
		return r.viewLocked(), ErrSaveInProgress
	case day != r.day || r.state == StateIdle || r.state == StateLoading:
		defer r.mu.Unlock()
		return r.viewLocked(), ErrDayNotReady
	}
	r.saving[day] = true
	r.state = StateSaving
	gen := r.gen
	snapshot := r.fields
	r.mu.Unlock()

	rec, err := r.gateway.MergeSet(ctx, r.userID, day, model.PatchFromFields(snapshot))
	if err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.saving, day)
		if !r.stale(gen) {
			r.state = StateEditing
		}
		r.logger.WarnContext(ctx, "saving check-in failed", "day", day, "error", err)
		return r.viewLocked(), fmt.Errorf("saving day %d: %w", day, err)
	}

	r.draftMu.Lock()
	defer r.draftMu.Unlock()

	if err := r.drafts.Clear(ctx, r.userID, day); err != nil {
		r.logger.WarnContext(ctx, "clearing draft after save failed", "day", day, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saving, day)
	if r.stale(gen) {
		return r.viewLocked(), ErrStaleCompletion
	}
	r.state = StateSaved
	r.fields = rec.Fields()
	savedAt := rec.SavedAt
	r.savedAt = &savedAt
	r.logger.InfoContext(ctx, "check-in saved", "day", day)
	return r.viewLocked(), nil
}

// View returns the current form snapshot.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Close ends the session. In-flight operations complete against the
// gateway but no longer change the view.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.gen++
	r.state = StateIdle
}

func (r *Reconciler) stale(gen uint64) bool {
	return r.closed || r.gen != gen
}

func (r *Reconciler) viewLocked() View {
	v := View{
		Day:    r.day,
		State:  r.state,
		Fields: r.fields,
	}
	if r.fields.Steps != nil {
		steps := *r.fields.Steps
		v.Fields.Steps = &steps
	}
	if r.savedAt != nil {
		t := *r.savedAt
		v.SavedAt = &t
	}
	return v
}

func validateDay(day int) error {
	if !model.ValidDay(day) {
		return &model.ValidationError{Errors: []model.FieldError{{
			Field:   "day",
			Message: fmt.Sprintf("must be between %d and %d", model.FirstDay, model.LastDay),
		}}}
	}
	return nil
}

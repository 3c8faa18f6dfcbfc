package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Program day bounds. Day 0 is the welcome day, day 21 the last one.
const (
	FirstDay = 0
	LastDay  = 21
)

// Default slider positions for a blank check-in form.
const (
	DefaultStress = 5
	DefaultSleep  = 5
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation error")

// ValidDay reports whether day lies inside the program.
func ValidDay(day int) bool {
	return day >= FirstDay && day <= LastDay
}

// CheckinFields is a snapshot of the daily check-in form.
// Steps is nil while the steps input is empty.
type CheckinFields struct {
	Completed bool   `json:"completed"`
	Stress    int    `json:"stress"`
	Sleep     int    `json:"sleep"`
	Steps     *int   `json:"steps"`
	Breathing bool   `json:"breathing"`
	Meal      bool   `json:"meal"`
	Notes     string `json:"notes"`
}

// DefaultCheckinFields returns the values shown on a blank form.
func DefaultCheckinFields() CheckinFields {
	return CheckinFields{
		Stress: DefaultStress,
		Sleep:  DefaultSleep,
	}
}

// Validate checks slider ranges and the step count.
func (f CheckinFields) Validate() error {
	var errs []FieldError
	if f.Stress < 1 || f.Stress > 10 {
		errs = append(errs, FieldError{Field: "stress", Message: "must be between 1 and 10"})
	}
	if f.Sleep < 1 || f.Sleep > 10 {
		errs = append(errs, FieldError{Field: "sleep", Message: "must be between 1 and 10"})
	}
	if f.Steps != nil && *f.Steps < 0 {
		errs = append(errs, FieldError{Field: "steps", Message: "must not be negative"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// CheckinRecord is a confirmed check-in stored remotely, one per (user, day).
type CheckinRecord struct {
	UserID    string    `json:"user_id"`
	Day       int       `json:"day"`
	Completed bool      `json:"completed"`
	Stress    int       `json:"stress"`
	Sleep     int       `json:"sleep"`
	Steps     int       `json:"steps"`
	Breathing bool      `json:"breathing"`
	Meal      bool      `json:"meal"`
	Notes     string    `json:"notes"`
	SavedAt   time.Time `json:"saved_at"`
}

// Fields projects the record onto the form. Out-of-range sliders written by
// other clients fall back to the form defaults.
func (r CheckinRecord) Fields() CheckinFields {
	f := CheckinFields{
		Completed: r.Completed,
		Stress:    r.Stress,
		Sleep:     r.Sleep,
		Breathing: r.Breathing,
		Meal:      r.Meal,
		Notes:     r.Notes,
	}
	if f.Stress < 1 || f.Stress > 10 {
		f.Stress = DefaultStress
	}
	if f.Sleep < 1 || f.Sleep > 10 {
		f.Sleep = DefaultSleep
	}
	if r.Steps > 0 {
		steps := r.Steps
		f.Steps = &steps
	}
	return f
}

// CheckinPatch is a partial record for merge-writes. Nil fields are left
// untouched on an existing record.
type CheckinPatch struct {
	Completed *bool
	Stress    *int
	Sleep     *int
	Steps     *int
	Breathing *bool
	Meal      *bool
	Notes     *string
}

// PatchFromFields builds a patch carrying every form field. An empty steps
// input is written as 0.
func PatchFromFields(f CheckinFields) CheckinPatch {
	steps := 0
	if f.Steps != nil {
		steps = *f.Steps
	}
	return CheckinPatch{
		Completed: &f.Completed,
		Stress:    &f.Stress,
		Sleep:     &f.Sleep,
		Steps:     &steps,
		Breathing: &f.Breathing,
		Meal:      &f.Meal,
		Notes:     &f.Notes,
	}
}

// Empty reports whether the patch carries no fields.
func (p CheckinPatch) Empty() bool {
	return p.Completed == nil && p.Stress == nil && p.Sleep == nil && p.Steps == nil &&
		p.Breathing == nil && p.Meal == nil && p.Notes == nil
}

// CheckinDraft is an unsaved, device-local check-in.
type CheckinDraft struct {
	Fields    CheckinFields `json:"fields"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FieldError describes a validation error for a single field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s %s", fe.Field, fe.Message)
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

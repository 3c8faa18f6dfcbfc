package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginkit/challenge-go/internal/localstore"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
)

const testUser = "u1"

func newTestReconciler(gw RecordGateway, drafts DraftStore) *Reconciler {
	return NewReconciler(discardLogger(), "s1", testUser, gw, drafts)
}

func edited(stress, sleep int) model.CheckinFields {
	f := model.DefaultCheckinFields()
	f.Stress = stress
	f.Sleep = sleep
	return f
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gateway call")
	}
}

type result struct {
	view View
	err  error
}

func TestEnterDay_BlankShowsDefaults(t *testing.T) {
	r := newTestReconciler(newFakeGateway(), newMemDrafts())

	v, err := r.EnterDay(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, StateShowingBlank, v.State)
	assert.Equal(t, 3, v.Day)
	assert.Equal(t, 5, v.Fields.Stress)
	assert.Equal(t, 5, v.Fields.Sleep)
	assert.Nil(t, v.Fields.Steps)
	assert.False(t, v.Fields.Completed)
	assert.Nil(t, v.SavedAt)
}

// Edits survive a reload, a submit replaces the draft with the record, and a
// wiped record with no draft falls back to the defaults.
func TestReconciler_DraftThenSubmitThenReload(t *testing.T) {
	ctx := context.Background()
	store, err := localstore.Open(discardLogger(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := newFakeGateway()
	drafts := store.Drafts()

	r := newTestReconciler(gw, drafts)
	_, err = r.EnterDay(ctx, 2)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 2, edited(7, 4))
	require.NoError(t, err)
	v, err := r.FieldChange(ctx, 2, edited(8, 3))
	require.NoError(t, err)
	assert.Equal(t, StateEditing, v.State)

	// Reload.
	r = newTestReconciler(gw, drafts)
	v, err = r.EnterDay(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateShowingDraft, v.State)
	assert.Equal(t, 8, v.Fields.Stress)
	assert.Equal(t, 3, v.Fields.Sleep)

	v, err = r.Submit(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateSaved, v.State)
	require.NotNil(t, v.SavedAt)
	assert.False(t, v.SavedAt.IsZero())

	rec, ok := gw.record(testUser, 2)
	require.True(t, ok)
	assert.Equal(t, 8, rec.Stress)
	assert.Equal(t, 3, rec.Sleep)

	d, err := drafts.Get(ctx, testUser, 2)
	require.NoError(t, err)
	assert.Nil(t, d, "draft cleared after a successful submit")

	r = newTestReconciler(gw, drafts)
	v, err = r.EnterDay(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateShowingRemote, v.State)
	assert.Equal(t, 8, v.Fields.Stress)
	assert.Equal(t, 3, v.Fields.Sleep)

	gw.remove(testUser, 2)
	v, err = r.EnterDay(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateShowingBlank, v.State)
	assert.Equal(t, 5, v.Fields.Stress)
	assert.Equal(t, 5, v.Fields.Sleep)
}

func TestEnterDay_RecordWinsOverDraft(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.put(model.CheckinRecord{UserID: testUser, Day: 4, Stress: 2, Sleep: 9, Steps: 4200, SavedAt: testSavedAt})
	drafts := newMemDrafts()
	require.NoError(t, drafts.Set(ctx, testUser, 4, model.CheckinDraft{Fields: edited(10, 1)}))

	r := newTestReconciler(gw, drafts)
	v, err := r.EnterDay(ctx, 4)
	require.NoError(t, err)

	assert.Equal(t, StateShowingRemote, v.State)
	assert.Equal(t, 2, v.Fields.Stress)
	require.NotNil(t, v.Fields.Steps)
	assert.Equal(t, 4200, *v.Fields.Steps)
	require.NotNil(t, v.SavedAt)
	assert.True(t, testSavedAt.Equal(*v.SavedAt))
	assert.False(t, drafts.has(testUser, 4), "orphaned draft discarded")
}

func TestEnterDay_RecordShownWhenDraftClearFails(t *testing.T) {
	gw := newFakeGateway()
	gw.put(model.CheckinRecord{UserID: testUser, Day: 4, Stress: 2, Sleep: 9})
	drafts := newMemDrafts()
	drafts.clearErr = errOffline

	v, err := newTestReconciler(gw, drafts).EnterDay(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, StateShowingRemote, v.State)
}

// Drafts are kept per day: an unsaved edit on one day never shows up on
// another day's form.
func TestReconciler_DraftsKeyedByDay(t *testing.T) {
	ctx := context.Background()
	r := newTestReconciler(newFakeGateway(), newMemDrafts())

	_, err := r.EnterDay(ctx, 3)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 3, edited(9, 2))
	require.NoError(t, err)

	v, err := r.EnterDay(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, StateShowingBlank, v.State)
	assert.Equal(t, 5, v.Fields.Stress)

	v, err = r.EnterDay(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StateShowingDraft, v.State)
	assert.Equal(t, 9, v.Fields.Stress)
}

func TestEnterDay_UnreadableDraftIsAbsent(t *testing.T) {
	drafts := newMemDrafts()
	drafts.getErr = errOffline

	v, err := newTestReconciler(newFakeGateway(), drafts).EnterDay(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StateShowingBlank, v.State)
}

func TestEnterDay_LoadFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	drafts := newMemDrafts()
	require.NoError(t, drafts.Set(ctx, testUser, 5, model.CheckinDraft{Fields: edited(6, 6)}))
	gw.getErr = repository.ErrUnavailable

	r := newTestReconciler(gw, drafts)
	v, err := r.EnterDay(ctx, 5)
	require.ErrorIs(t, err, repository.ErrUnavailable)
	assert.Equal(t, StateIdle, v.State)
	assert.True(t, drafts.has(testUser, 5))

	_, err = r.FieldChange(ctx, 5, edited(7, 7))
	assert.ErrorIs(t, err, ErrDayNotReady)
	_, err = r.Submit(ctx, 5)
	assert.ErrorIs(t, err, ErrDayNotReady)
	assert.Equal(t, int32(0), gw.merges.Load())
}

func TestFieldChange_Validation(t *testing.T) {
	ctx := context.Background()
	r := newTestReconciler(newFakeGateway(), newMemDrafts())
	_, err := r.EnterDay(ctx, 1)
	require.NoError(t, err)

	_, err = r.FieldChange(ctx, 1, edited(11, 5))
	assert.ErrorIs(t, err, model.ErrValidation)

	steps := -1
	f := edited(5, 5)
	f.Steps = &steps
	_, err = r.FieldChange(ctx, 1, f)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = r.EnterDay(ctx, 22)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestFieldChange_OtherDayNotReady(t *testing.T) {
	ctx := context.Background()
	r := newTestReconciler(newFakeGateway(), newMemDrafts())

	_, err := r.FieldChange(ctx, 1, edited(5, 5))
	assert.ErrorIs(t, err, ErrDayNotReady)

	_, err = r.EnterDay(ctx, 1)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 2, edited(5, 5))
	assert.ErrorIs(t, err, ErrDayNotReady)
}

func TestFieldChange_DraftWriteFailureSurfaced(t *testing.T) {
	ctx := context.Background()
	drafts := newMemDrafts()
	r := newTestReconciler(newFakeGateway(), drafts)
	_, err := r.EnterDay(ctx, 1)
	require.NoError(t, err)

	drafts.setErr = errOffline
	v, err := r.FieldChange(ctx, 1, edited(3, 3))
	assert.ErrorIs(t, err, errOffline)
	assert.Equal(t, 3, v.Fields.Stress, "form keeps the edit")
}

func TestSubmit_AtMostOneSavePerDay(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.mergeEntered = make(chan struct{}, 1)
	gw.mergeGate = make(chan struct{})
	r := newTestReconciler(gw, newMemDrafts())

	_, err := r.EnterDay(ctx, 6)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 6, edited(4, 8))
	require.NoError(t, err)

	first := make(chan result, 1)
	go func() {
		v, err := r.Submit(ctx, 6)
		first <- result{v, err}
	}()
	waitSignal(t, gw.mergeEntered)

	v, err := r.Submit(ctx, 6)
	assert.ErrorIs(t, err, ErrSaveInProgress)
	assert.Equal(t, StateSaving, v.State)

	_, err = r.FieldChange(ctx, 6, edited(1, 1))
	assert.ErrorIs(t, err, ErrSaveInProgress)

	close(gw.mergeGate)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, StateSaved, res.view.State)
	assert.Equal(t, int32(1), gw.merges.Load())

	rec, _ := gw.record(testUser, 6)
	assert.Equal(t, 4, rec.Stress, "the rejected edit never reached the record")
}

func TestSubmit_TransientFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	drafts := newMemDrafts()
	r := newTestReconciler(gw, drafts)

	_, err := r.EnterDay(ctx, 2)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 2, edited(8, 3))
	require.NoError(t, err)

	gw.setErr = repository.ErrUnavailable
	v, err := r.Submit(ctx, 2)
	require.ErrorIs(t, err, repository.ErrUnavailable)
	assert.NotErrorIs(t, err, repository.ErrPermissionDenied)
	assert.Equal(t, StateEditing, v.State)
	assert.Equal(t, 8, v.Fields.Stress)
	assert.True(t, drafts.has(testUser, 2))

	// The caller retries explicitly.
	gw.setErr = nil
	v, err = r.Submit(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateSaved, v.State)
	assert.False(t, drafts.has(testUser, 2))
	assert.Equal(t, int32(2), gw.merges.Load())
}

func TestSubmit_PermissionDeniedIsDistinct(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	drafts := newMemDrafts()
	r := newTestReconciler(gw, drafts)

	_, err := r.EnterDay(ctx, 2)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 2, edited(8, 3))
	require.NoError(t, err)

	gw.setErr = repository.ErrPermissionDenied
	_, err = r.Submit(ctx, 2)
	require.ErrorIs(t, err, repository.ErrPermissionDenied)
	assert.NotErrorIs(t, err, repository.ErrUnavailable)
	assert.True(t, drafts.has(testUser, 2))
}

func TestSubmit_MergePreservesUnknownFields(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.put(model.CheckinRecord{UserID: testUser, Day: 1, Stress: 5, Sleep: 5, Notes: "from another client", Steps: 100})
	r := newTestReconciler(gw, newMemDrafts())

	_, err := r.EnterDay(ctx, 1)
	require.NoError(t, err)
	f := edited(6, 6)
	f.Notes = "from another client"
	steps := 100
	f.Steps = &steps
	_, err = r.FieldChange(ctx, 1, f)
	require.NoError(t, err)
	_, err = r.Submit(ctx, 1)
	require.NoError(t, err)

	rec, _ := gw.record(testUser, 1)
	assert.Equal(t, "from another client", rec.Notes)
	assert.Equal(t, 6, rec.Stress)
}

func TestSubmit_BeforeEnterDay(t *testing.T) {
	_, err := newTestReconciler(newFakeGateway(), newMemDrafts()).Submit(context.Background(), 0)
	assert.ErrorIs(t, err, ErrDayNotReady)
}

func TestEnterDay_StaleCompletionAfterClose(t *testing.T) {
	gw := newFakeGateway()
	gw.getEntered = make(chan struct{}, 1)
	gw.getGate = make(chan struct{})
	r := newTestReconciler(gw, newMemDrafts())

	done := make(chan result, 1)
	go func() {
		v, err := r.EnterDay(context.Background(), 3)
		done <- result{v, err}
	}()
	waitSignal(t, gw.getEntered)

	r.Close()
	close(gw.getGate)

	res := <-done
	assert.ErrorIs(t, res.err, ErrStaleCompletion)
	assert.Equal(t, StateIdle, r.View().State)

	_, err := r.EnterDay(context.Background(), 3)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSubmit_StaleCompletionAfterClose(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	drafts := newMemDrafts()
	r := newTestReconciler(gw, drafts)
	_, err := r.EnterDay(ctx, 3)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 3, edited(2, 2))
	require.NoError(t, err)

	gw.mergeEntered = make(chan struct{}, 1)
	gw.mergeGate = make(chan struct{})
	done := make(chan result, 1)
	go func() {
		v, err := r.Submit(ctx, 3)
		done <- result{v, err}
	}()
	waitSignal(t, gw.mergeEntered)

	r.Close()
	close(gw.mergeGate)

	res := <-done
	assert.ErrorIs(t, res.err, ErrStaleCompletion)
	assert.NotEqual(t, StateSaved, r.View().State)

	_, ok := gw.record(testUser, 3)
	assert.True(t, ok, "the write itself completed")
	assert.False(t, drafts.has(testUser, 3))
}

// Re-entering a day while its save is running must not discard the draft;
// if the save then fails the edits are still on the device.
func TestEnterDay_RejectedWhileSaving(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.put(model.CheckinRecord{UserID: testUser, Day: 3, Stress: 2, Sleep: 2, SavedAt: testSavedAt})
	drafts := newMemDrafts()
	r := newTestReconciler(gw, drafts)

	_, err := r.EnterDay(ctx, 3)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 3, edited(9, 9))
	require.NoError(t, err)

	gw.mergeEntered = make(chan struct{}, 1)
	gw.mergeGate = make(chan struct{})
	done := make(chan result, 1)
	go func() {
		v, err := r.Submit(ctx, 3)
		done <- result{v, err}
	}()
	waitSignal(t, gw.mergeEntered)

	v, err := r.EnterDay(ctx, 3)
	assert.ErrorIs(t, err, ErrSaveInProgress)
	assert.Equal(t, StateSaving, v.State)
	assert.True(t, drafts.has(testUser, 3))

	gw.setErr = errOffline
	close(gw.mergeGate)

	res := <-done
	require.ErrorIs(t, res.err, errOffline)
	assert.Equal(t, StateEditing, res.view.State)
	assert.Equal(t, 9, res.view.Fields.Stress)
	assert.True(t, drafts.has(testUser, 3), "draft survives the failed save")

	rec, _ := gw.record(testUser, 3)
	assert.Equal(t, 2, rec.Stress)
}

// A slow load of one day holds back the next EnterDay, so the later day is
// what the form ends up showing.
func TestEnterDay_LaterDayWinsOverSlowLoad(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.put(model.CheckinRecord{UserID: testUser, Day: 3, Stress: 2, Sleep: 2, SavedAt: testSavedAt})
	gw.getEntered = make(chan struct{}, 2)
	gw.getGate = make(chan struct{})
	r := newTestReconciler(gw, newMemDrafts())

	slow := make(chan result, 1)
	go func() {
		v, err := r.EnterDay(ctx, 3)
		slow <- result{v, err}
	}()
	waitSignal(t, gw.getEntered)

	fast := make(chan result, 1)
	go func() {
		v, err := r.EnterDay(ctx, 4)
		fast <- result{v, err}
	}()

	select {
	case <-fast:
		t.Fatal("day 4 began loading before day 3 settled")
	case <-time.After(50 * time.Millisecond):
	}
	v := r.View()
	assert.Equal(t, 3, v.Day)
	assert.Equal(t, StateLoading, v.State)

	close(gw.getGate)

	res := <-slow
	require.NoError(t, res.err)
	assert.Equal(t, StateShowingRemote, res.view.State)

	res = <-fast
	require.NoError(t, res.err)
	assert.Equal(t, 4, res.view.Day)
	assert.Equal(t, StateShowingBlank, res.view.State)

	v = r.View()
	assert.Equal(t, 4, v.Day)
	assert.Equal(t, StateShowingBlank, v.State)
	assert.Equal(t, 5, v.Fields.Stress)
}

// Moving to another day while a save is in flight makes the save's result
// stale; the record is still written and the draft cleared, but the form keeps
// showing the newer day.
func TestSubmit_StaleAfterEnteringAnotherDay(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	drafts := newMemDrafts()
	r := newTestReconciler(gw, drafts)

	_, err := r.EnterDay(ctx, 3)
	require.NoError(t, err)
	_, err = r.FieldChange(ctx, 3, edited(7, 6))
	require.NoError(t, err)

	gw.mergeEntered = make(chan struct{}, 1)
	gw.mergeGate = make(chan struct{})
	done := make(chan result, 1)
	go func() {
		v, err := r.Submit(ctx, 3)
		done <- result{v, err}
	}()
	waitSignal(t, gw.mergeEntered)

	v, err := r.EnterDay(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, StateShowingBlank, v.State)

	close(gw.mergeGate)

	res := <-done
	assert.ErrorIs(t, res.err, ErrStaleCompletion)

	v = r.View()
	assert.Equal(t, 4, v.Day)
	assert.Equal(t, StateShowingBlank, v.State)
	assert.Nil(t, v.SavedAt)

	rec, ok := gw.record(testUser, 3)
	require.True(t, ok)
	assert.Equal(t, 7, rec.Stress)
	assert.False(t, drafts.has(testUser, 3))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "showing_remote", StateShowingRemote.String())
	assert.Equal(t, "state(42)", State(42).String())

	b, err := StateSaving.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "saving", string(b))
}

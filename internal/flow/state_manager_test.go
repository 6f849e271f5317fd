package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
)

func newTestStateManager(t *testing.T) *StoreBasedStateManager {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })
	return NewStoreBasedStateManager(st)
}

func TestStateManagerImplicitInitialState(t *testing.T) {
	sm := newTestStateManager(t)
	ctx := context.Background()

	state, err := sm.GetCurrentState(ctx, "sess-1", models.FlowTypeBooking)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if state != "" {
		t.Errorf("expected empty state for fresh session, got %q", state)
	}
}

func TestStateManagerSetAndGetState(t *testing.T) {
	sm := newTestStateManager(t)
	ctx := context.Background()

	if err := sm.SetCurrentState(ctx, "sess-1", models.FlowTypeBooking, models.StateAwaitingName); err != nil {
		t.Fatalf("SetCurrentState failed: %v", err)
	}
	state, err := sm.GetCurrentState(ctx, "sess-1", models.FlowTypeBooking)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if state != models.StateAwaitingName {
		t.Errorf("expected AWAITING_NAME, got %q", state)
	}
}

func TestStateManagerStateData(t *testing.T) {
	sm := newTestStateManager(t)
	ctx := context.Background()

	// Setting data before any state creates the flow state row.
	if err := sm.SetStateData(ctx, "sess-1", models.FlowTypeBooking, models.DataKeyPendingBooking, `{"name":"Ada"}`); err != nil {
		t.Fatalf("SetStateData failed: %v", err)
	}
	value, err := sm.GetStateData(ctx, "sess-1", models.FlowTypeBooking, models.DataKeyPendingBooking)
	if err != nil {
		t.Fatalf("GetStateData failed: %v", err)
	}
	if value != `{"name":"Ada"}` {
		t.Errorf("unexpected state data: %q", value)
	}

	// Unknown keys come back empty, not as an error.
	value, err = sm.GetStateData(ctx, "sess-1", models.FlowTypeBooking, models.DataKeyTranscript)
	if err != nil {
		t.Fatalf("GetStateData failed: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for unset key, got %q", value)
	}
}

func TestStateManagerTransitionVerifiesFromState(t *testing.T) {
	sm := newTestStateManager(t)
	ctx := context.Background()

	if err := sm.SetCurrentState(ctx, "sess-1", models.FlowTypeBooking, models.StateAwaitingName); err != nil {
		t.Fatalf("SetCurrentState failed: %v", err)
	}

	if err := sm.TransitionState(ctx, "sess-1", models.FlowTypeBooking, models.StateAwaitingName, models.StateAwaitingEmail); err != nil {
		t.Fatalf("valid transition failed: %v", err)
	}

	err := sm.TransitionState(ctx, "sess-1", models.FlowTypeBooking, models.StateAwaitingName, models.StateAwaitingSlotSelection)
	if err == nil {
		t.Fatal("expected error for stale fromState")
	}
	if !strings.Contains(err.Error(), "invalid state transition") {
		t.Errorf("unexpected error: %v", err)
	}

	// The failed transition must not have moved the state.
	state, err := sm.GetCurrentState(ctx, "sess-1", models.FlowTypeBooking)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if state != models.StateAwaitingEmail {
		t.Errorf("state moved despite failed transition: %q", state)
	}
}

func TestStateManagerResetClearsStateAndData(t *testing.T) {
	sm := newTestStateManager(t)
	ctx := context.Background()

	sm.SetCurrentState(ctx, "sess-1", models.FlowTypeBooking, models.StateAwaitingEmail)
	sm.SetStateData(ctx, "sess-1", models.FlowTypeBooking, models.DataKeyPendingBooking, `{"name":"Ada"}`)

	if err := sm.ResetState(ctx, "sess-1", models.FlowTypeBooking); err != nil {
		t.Fatalf("ResetState failed: %v", err)
	}

	state, err := sm.GetCurrentState(ctx, "sess-1", models.FlowTypeBooking)
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if state != "" {
		t.Errorf("expected empty state after reset, got %q", state)
	}
	value, err := sm.GetStateData(ctx, "sess-1", models.FlowTypeBooking, models.DataKeyPendingBooking)
	if err != nil {
		t.Fatalf("GetStateData failed: %v", err)
	}
	if value != "" {
		t.Errorf("expected state data gone after reset, got %q", value)
	}
}

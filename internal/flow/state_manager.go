// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookline/bookline/internal/models"
	"github.com/bookline/bookline/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetCurrentState retrieves the current state for a session in a flow.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType) (models.StateType, error) {
	slog.Debug("StateManager GetCurrentState", "sessionID", sessionID, "flowType", flowType)

	flowState, err := sm.store.GetFlowState(sessionID, flowType)
	if err != nil {
		slog.Error("StateManager GetCurrentState error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return "", err
	}

	if flowState == nil {
		slog.Debug("StateManager GetCurrentState not found", "sessionID", sessionID, "flowType", flowType)
		return "", nil
	}

	slog.Debug("StateManager GetCurrentState found", "sessionID", sessionID, "flowType", flowType, "state", flowState.CurrentState)
	return flowState.CurrentState, nil
}

// SetCurrentState updates the current state for a session in a flow.
func (sm *StoreBasedStateManager) SetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType, state models.StateType) error {
	slog.Debug("StateManager SetCurrentState", "sessionID", sessionID, "flowType", flowType, "state", state)

	// Get existing state or create new one
	flowState, err := sm.store.GetFlowState(sessionID, flowType)
	if err != nil {
		slog.Error("StateManager SetCurrentState get error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			SessionID:    sessionID,
			FlowType:     flowType,
			CurrentState: state,
			StateData:    make(map[models.DataKey]string),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	} else {
		flowState.CurrentState = state
		flowState.UpdatedAt = now
	}

	err = sm.store.SaveFlowState(*flowState)
	if err != nil {
		slog.Error("StateManager SetCurrentState save error", "error", err, "sessionID", sessionID, "flowType", flowType, "state", state)
		return err
	}

	slog.Debug("StateManager SetCurrentState succeeded", "sessionID", sessionID, "flowType", flowType, "state", state)
	return nil
}

// GetStateData retrieves additional data associated with the session's state.
func (sm *StoreBasedStateManager) GetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey) (string, error) {
	slog.Debug("StateManager GetStateData", "sessionID", sessionID, "flowType", flowType, "key", key)

	flowState, err := sm.store.GetFlowState(sessionID, flowType)
	if err != nil {
		slog.Error("StateManager GetStateData error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return "", err
	}

	if flowState == nil || flowState.StateData == nil {
		slog.Debug("StateManager GetStateData not found", "sessionID", sessionID, "flowType", flowType, "key", key)
		return "", nil
	}

	value, exists := flowState.StateData[key]
	if !exists {
		slog.Debug("StateManager GetStateData key not found", "sessionID", sessionID, "flowType", flowType, "key", key)
		return "", nil
	}

	slog.Debug("StateManager GetStateData found", "sessionID", sessionID, "flowType", flowType, "key", key)
	return value, nil
}

// SetStateData stores additional data associated with the session's state.
func (sm *StoreBasedStateManager) SetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey, value string) error {
	slog.Debug("StateManager SetStateData", "sessionID", sessionID, "flowType", flowType, "key", key)

	// Get existing state or create new one
	flowState, err := sm.store.GetFlowState(sessionID, flowType)
	if err != nil {
		slog.Error("StateManager SetStateData get error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return err
	}

	now := time.Now()
	if flowState == nil {
		// Create new flow state with empty current state
		flowState = &models.FlowState{
			SessionID:    sessionID,
			FlowType:     flowType,
			CurrentState: "",
			StateData:    map[models.DataKey]string{key: value},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	} else {
		if flowState.StateData == nil {
			flowState.StateData = make(map[models.DataKey]string)
		}
		flowState.StateData[key] = value
		flowState.UpdatedAt = now
	}

	err = sm.store.SaveFlowState(*flowState)
	if err != nil {
		slog.Error("StateManager SetStateData save error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return err
	}

	slog.Debug("StateManager SetStateData succeeded", "sessionID", sessionID, "flowType", flowType, "key", key)
	return nil
}

// TransitionState transitions from one state to another.
func (sm *StoreBasedStateManager) TransitionState(ctx context.Context, sessionID string, flowType models.FlowType, fromState, toState models.StateType) error {
	slog.Debug("StateManager TransitionState", "sessionID", sessionID, "flowType", flowType, "from", fromState, "to", toState)

	// Verify current state matches expected fromState
	currentState, err := sm.GetCurrentState(ctx, sessionID, flowType)
	if err != nil {
		slog.Error("StateManager TransitionState get current state error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}

	if currentState != fromState {
		err := fmt.Errorf("invalid state transition: expected %s, current is %s", fromState, currentState)
		slog.Error("StateManager TransitionState invalid transition", "error", err, "sessionID", sessionID, "flowType", flowType, "expected", fromState, "current", currentState)
		return err
	}

	err = sm.SetCurrentState(ctx, sessionID, flowType, toState)
	if err != nil {
		slog.Error("StateManager TransitionState set state error", "error", err, "sessionID", sessionID, "flowType", flowType, "to", toState)
		return err
	}

	slog.Info("StateManager TransitionState succeeded", "sessionID", sessionID, "flowType", flowType, "from", fromState, "to", toState)
	return nil
}

// ResetState removes all state data for a session in a flow.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, sessionID string, flowType models.FlowType) error {
	slog.Debug("StateManager ResetState", "sessionID", sessionID, "flowType", flowType)

	err := sm.store.DeleteFlowState(sessionID, flowType)
	if err != nil {
		slog.Error("StateManager ResetState error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}

	slog.Info("StateManager ResetState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}

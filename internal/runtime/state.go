package runtime

import (
	"sync"
	"time"
)

// SessionState is the in-process tally of one chat session.
type SessionState struct {
	SessionID          string
	Rounds             int
	GenerationFailures int
	Recalled           int
	LastRoundID        string
	Status             string
	StartedAt          time.Time
	LastUpdatedAt      time.Time
}

// StateManager tracks chat sessions. Rounds themselves are persisted by the
// memory engine; sessions only live as long as the process.
type StateManager struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
}

// NewStateManager creates a new state manager.
func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[string]*SessionState),
	}
}

// InitSession initializes a new session state.
func (sm *StateManager) InitSession(sessionID string) *SessionState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.initLocked(sessionID)
}

func (sm *StateManager) initLocked(sessionID string) *SessionState {
	now := time.Now()
	state := &SessionState{
		SessionID:     sessionID,
		Status:        "initialized",
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	sm.sessions[sessionID] = state
	return state
}

// GetState returns a copy of the state for a session, or nil.
func (sm *StateManager) GetState(sessionID string) *SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	state, ok := sm.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

// BeginRound counts a new round, creating the session on first use, and
// returns the round number.
func (sm *StateManager) BeginRound(sessionID, roundID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, ok := sm.sessions[sessionID]
	if !ok {
		state = sm.initLocked(sessionID)
	}
	state.Rounds++
	state.LastRoundID = roundID
	state.Status = "running"
	state.LastUpdatedAt = time.Now()
	return state.Rounds
}

// EndRound records the outcome of the current round.
func (sm *StateManager) EndRound(sessionID string, recalled int, generationFailed bool, status string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state, ok := sm.sessions[sessionID]; ok {
		state.Recalled += recalled
		if generationFailed {
			state.GenerationFailures++
		}
		state.Status = status
		state.LastUpdatedAt = time.Now()
	}
}

// GetStatus returns the current session status.
func (sm *StateManager) GetStatus(sessionID string) string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if state, ok := sm.sessions[sessionID]; ok {
		return state.Status
	}
	return ""
}

// CleanupSession removes the session state from memory.
func (sm *StateManager) CleanupSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
}

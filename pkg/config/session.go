package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LastSession records the most recent actor login.
type LastSession struct {
	ActorID   string `json:"actorId"`
	Timestamp int64  `json:"timestamp"`
}

// ActorState is the per-actor slice of session state.
type ActorState struct {
	ActiveTaskID  string `json:"activeTaskId,omitempty"`
	ActiveCycleID string `json:"activeCycleId,omitempty"`
	LastSync      int64  `json:"lastSync"`
}

// Session is the content of .gitgov/.session.json.
type Session struct {
	LastSession *LastSession          `json:"lastSession,omitempty"`
	ActorState  map[string]ActorState `json:"actorState"`
}

// SessionManager reads and mutates the session document. Every mutation is
// an independent read-modify-write; the file is never held open.
type SessionManager struct {
	path string
}

// NewSessionManager creates a manager for the session file at path.
func NewSessionManager(path string) *SessionManager {
	return &SessionManager{path: path}
}

// Load reads the session; a missing file yields an empty session.
func (m *SessionManager) Load(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Session{ActorState: map[string]ActorState{}}, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", m.path, err)
	}
	if s.ActorState == nil {
		s.ActorState = map[string]ActorState{}
	}
	return &s, nil
}

// Save writes the session atomically.
func (m *SessionManager) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(m.path, s)
}

func (m *SessionManager) update(ctx context.Context, mutate func(*Session)) error {
	s, err := m.Load(ctx)
	if err != nil {
		return err
	}
	mutate(s)
	return m.Save(ctx, s)
}

// SetLastActor records actorID as the last logged-in actor.
func (m *SessionManager) SetLastActor(ctx context.Context, actorID string) error {
	return m.update(ctx, func(s *Session) {
		s.LastSession = &LastSession{ActorID: actorID, Timestamp: time.Now().Unix()}
	})
}

// LastActor returns the last logged-in actor id, or "" when none.
func (m *SessionManager) LastActor(ctx context.Context) (string, error) {
	s, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	if s.LastSession == nil {
		return "", nil
	}
	return s.LastSession.ActorID, nil
}

// SetActiveTask sets the acting actor's active task.
func (m *SessionManager) SetActiveTask(ctx context.Context, actorID, taskID string) error {
	return m.update(ctx, func(s *Session) {
		st := s.ActorState[actorID]
		st.ActiveTaskID = taskID
		s.ActorState[actorID] = st
	})
}

// ClearActiveTask clears the acting actor's active task.
func (m *SessionManager) ClearActiveTask(ctx context.Context, actorID string) error {
	return m.SetActiveTask(ctx, actorID, "")
}

// SetActiveCycle sets the acting actor's active cycle.
func (m *SessionManager) SetActiveCycle(ctx context.Context, actorID, cycleID string) error {
	return m.update(ctx, func(s *Session) {
		st := s.ActorState[actorID]
		st.ActiveCycleID = cycleID
		s.ActorState[actorID] = st
	})
}

// ClearActiveCycle clears the acting actor's active cycle.
func (m *SessionManager) ClearActiveCycle(ctx context.Context, actorID string) error {
	return m.SetActiveCycle(ctx, actorID, "")
}

// GetActorState returns the session slice for one actor.
func (m *SessionManager) GetActorState(ctx context.Context, actorID string) (ActorState, error) {
	s, err := m.Load(ctx)
	if err != nil {
		return ActorState{}, err
	}
	return s.ActorState[actorID], nil
}

// MigrateActor moves session state from an old actor id to its successor
// after a key rotation, and repoints lastSession when it named the old id.
func (m *SessionManager) MigrateActor(ctx context.Context, oldID, newID string) error {
	return m.update(ctx, func(s *Session) {
		if st, ok := s.ActorState[oldID]; ok {
			s.ActorState[newID] = st
			delete(s.ActorState, oldID)
		}
		if s.LastSession != nil && s.LastSession.ActorID == oldID {
			s.LastSession = &LastSession{ActorID: newID, Timestamp: time.Now().Unix()}
		}
	})
}

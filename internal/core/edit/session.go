package edit

import (
	"context"
	"sync"

	"github.com/example/pm/internal/models"
)

// Updater submits a validated payload for an existing record.
type Updater interface {
	Update(ctx context.Context, id string, payload models.Record) (models.Record, error)
}

// Session is the per-screen edit state machine:
//
//	viewing -> editing -> viewing            (cancel)
//	viewing -> editing -> submitting -> viewing   (save ok)
//	viewing -> editing -> submitting -> editing   (save failed, draft kept)
type Session struct {
	mu      sync.Mutex
	schema  *models.Schema
	updater Updater
	state   State
	draft   Draft
	err     error
}

// NewSession creates a session in the viewing state.
func NewSession(schema *models.Schema, updater Updater) *Session {
	return &Session{schema: schema, updater: updater, state: StateViewing}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns a copy of the staged draft; ok is false when viewing.
func (s *Session) Draft() (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateViewing {
		return Draft{}, false
	}
	return s.draft.Clone(), true
}

// Err returns the error from the last failed commit, if the session is still editing.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) stateContext() StateContext {
	return StateContext{State: s.state, EntityID: s.draft.EntityID}
}

// BeginEdit enters edit mode for r.
func (s *Session) BeginEdit(r models.Record) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := CanBeginEdit(s.stateContext()).Error(); err != nil {
		return Draft{}, err
	}
	d, err := BeginEdit(s.schema, r)
	if err != nil {
		return Draft{}, err
	}
	s.draft = d
	s.state = StateEditing
	s.err = nil
	return d.Clone(), nil
}

// UpdateField stages one field change.
func (s *Session) UpdateField(field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := CanUpdateField(s.stateContext()).Error(); err != nil {
		return err
	}
	d, err := UpdateField(s.schema, s.draft, field, value)
	if err != nil {
		return err
	}
	s.draft = d
	return nil
}

// Cancel discards the draft without any remote call.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := CanCancel(s.stateContext()).Error(); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.draft = Draft{}
	s.state = StateViewing
	s.err = nil
}

// Commit validates the draft and submits it through exactly one Update call.
// Validation failures never reach the updater. On any failure the session stays
// in edit mode with the draft intact.
func (s *Session) Commit(ctx context.Context) (models.Record, error) {
	s.mu.Lock()
	if err := CanCommit(s.stateContext()).Error(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := Validate(s.schema, s.draft); err != nil {
		s.err = err
		s.mu.Unlock()
		return nil, err
	}
	payload, err := Payload(s.schema, s.draft)
	if err != nil {
		s.err = err
		s.mu.Unlock()
		return nil, err
	}
	id := s.draft.EntityID
	s.state = StateSubmitting
	s.mu.Unlock()

	saved, err := s.updater.Update(ctx, id, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateEditing
		s.err = err
		return nil, err
	}
	s.reset()
	return saved, nil
}

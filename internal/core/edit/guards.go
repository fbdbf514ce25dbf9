package edit

import "fmt"

// State is the edit-mode state of one screen.
type State string

const (
	StateViewing    State = "viewing"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// StateContext provides context for edit transition guards.
type StateContext struct {
	State    State
	EntityID string // record currently being edited, if any
}

// CanBeginEdit evaluates whether a record can enter edit mode.
// Rules:
// - No other record may be in edit mode or saving
func CanBeginEdit(ctx StateContext) GuardResult {
	switch ctx.State {
	case StateViewing:
		return GuardResult{Allowed: true}
	case StateSubmitting:
		return GuardResult{Reason: fmt.Sprintf("record %s is still saving", ctx.EntityID)}
	}
	return GuardResult{Reason: fmt.Sprintf("record %s is already being edited; save or cancel it first", ctx.EntityID)}
}

// CanUpdateField evaluates whether the staged draft accepts changes.
// Rules:
// - Must be editing (not viewing, not mid-save)
func CanUpdateField(ctx StateContext) GuardResult {
	if ctx.State != StateEditing {
		return GuardResult{Reason: fmt.Sprintf("cannot change fields while %s", ctx.State)}
	}
	return GuardResult{Allowed: true}
}

// CanCancel evaluates whether the draft can be discarded.
// Rules:
// - Must be editing; a save in flight cannot be cancelled
func CanCancel(ctx StateContext) GuardResult {
	switch ctx.State {
	case StateEditing:
		return GuardResult{Allowed: true}
	case StateSubmitting:
		return GuardResult{Reason: fmt.Sprintf("record %s is saving and cannot be cancelled", ctx.EntityID)}
	}
	return GuardResult{Reason: "nothing is being edited"}
}

// CanCommit evaluates whether the draft can be submitted.
// Rules:
// - Must be editing
// - At most one save in flight
func CanCommit(ctx StateContext) GuardResult {
	switch ctx.State {
	case StateEditing:
		return GuardResult{Allowed: true}
	case StateSubmitting:
		return GuardResult{Reason: fmt.Sprintf("record %s is already saving", ctx.EntityID)}
	}
	return GuardResult{Reason: "nothing is being edited"}
}

package binder

import "fmt"

// UnboundComponentError is returned when a component id is unknown, expired,
// or was invalidated together with its message. Stale buttons are expected,
// so callers should treat this as recoverable.
type UnboundComponentError struct {
	MessageID   string
	ComponentID string
}

func (e *UnboundComponentError) Error() string {
	return fmt.Sprintf("component %q on message %q is not bound", e.ComponentID, e.MessageID)
}

// BindingCollisionError means an id generator produced an id that is already
// bound on the same message.
type BindingCollisionError struct {
	MessageID   string
	ComponentID string
}

func (e *BindingCollisionError) Error() string {
	return fmt.Sprintf("component id %q already bound on message %q", e.ComponentID, e.MessageID)
}

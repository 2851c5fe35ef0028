package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an operation is not legal from the current state of a node.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrTransitionInProgress is returned by Begin while a previous transition is neither committed nor rolled back.
var ErrTransitionInProgress = errors.New("transition in progress")

// ErrNodeNotFound is returned when no node is registered for a project or bundle.
var ErrNodeNotFound = errors.New("bundle node not found")

// ErrUnknownTransition is returned when a transition name cannot be parsed.
var ErrUnknownTransition = errors.New("unknown transition")

// ErrNoBundle is returned when a bundle is required but the project has never been installed.
var ErrNoBundle = errors.New("project has no bundle")

// InvalidTransitionError reports an operation attempted from a state that does not allow it.
type InvalidTransitionError struct {
	Project ProjectKey
	State   StateKind
	Op      Transition
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s is not legal for %s in state %s", e.Op, e.Project, e.State)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ErrSnapshotNotFound is returned when a store holds no snapshot for a project.
var ErrSnapshotNotFound = errors.New("node snapshot not found")

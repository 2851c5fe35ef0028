package domain

import "fmt"

// ProjectKey identifies a workspace project. It is stable for the lifetime of a node.
type ProjectKey string

// Bundle is the installed form of a project.
type Bundle struct {
	ID           int64  `json:"id" yaml:"id"`
	SymbolicName string `json:"symbolic_name" yaml:"symbolic_name"`
	Version      string `json:"version" yaml:"version"`
	Location     string `json:"location,omitempty" yaml:"location,omitempty"`
}

// SymbolicKey is the identity two projects must not share.
func (b *Bundle) SymbolicKey() string {
	if b == nil {
		return ""
	}
	return b.SymbolicName + "_" + b.Version
}

// Activation records whether the user asked for a project to run in place.
type Activation uint8

const (
	ActivationUnset Activation = iota
	Activated
	Deactivated
)

func (a Activation) String() string {
	switch a {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	default:
		return "unset"
	}
}

func (a Activation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Activation) UnmarshalText(text []byte) error {
	switch string(text) {
	case "activated":
		*a = Activated
	case "deactivated":
		*a = Deactivated
	case "unset", "":
		*a = ActivationUnset
	default:
		return fmt.Errorf("unknown activation %q", string(text))
	}
	return nil
}

// BundleNode is the lifecycle record of one project and its bundle.
//
// A node is not safe for concurrent use. Callers serialize Begin, Commit and
// RollBack for a given node.
type BundleNode struct {
	project    ProjectKey
	bundle     *Bundle
	activation Activation

	state, prevState                     StateKind
	transition, prevTransition           Transition
	transitionError, prevTransitionError TransitionError
	pending                              TransitionSet
	isStateChanging                      bool
}

// NewBundleNode creates a node in its initial state: Uninstalled when a
// bundle is already known and StateLess otherwise.
func NewBundleNode(project ProjectKey, bundle *Bundle, activation Activation) *BundleNode {
	state := StateLess
	if bundle != nil {
		state = Uninstalled
	}
	return &BundleNode{
		project:    project,
		bundle:     bundle,
		activation: activation,
		state:      state,
		prevState:  state,
	}
}

func (n *BundleNode) Project() ProjectKey { return n.project }

// Bundle returns the bundle of the project or nil before the first install.
func (n *BundleNode) Bundle() *Bundle { return n.bundle }

// BundleID returns the bundle id and false when there is no bundle.
func (n *BundleNode) BundleID() (int64, bool) {
	if n.bundle == nil {
		return 0, false
	}
	return n.bundle.ID, true
}

func (n *BundleNode) SetBundle(b *Bundle) { n.bundle = b }

func (n *BundleNode) Activation() Activation { return n.activation }

func (n *BundleNode) SetActivation(a Activation) { n.activation = a }

// IsActivated reports whether the project is activated.
func (n *BundleNode) IsActivated() bool { return n.activation == Activated }

func (n *BundleNode) State() StateKind { return n.state }

func (n *BundleNode) PrevState() StateKind { return n.prevState }

func (n *BundleNode) Transition() Transition { return n.transition }

func (n *BundleNode) PrevTransition() Transition { return n.prevTransition }

// SetTransition replaces the current transition and returns the previous one.
// The state and error are left untouched.
func (n *BundleNode) SetTransition(t Transition) Transition {
	old := n.transition
	n.transition = t
	return old
}

// IsStateChanging is true between Begin and Commit or RollBack.
func (n *BundleNode) IsStateChanging() bool { return n.isStateChanging }

// IsState reports whether the node is in state k.
func (n *BundleNode) IsState(k StateKind) bool { return n.state == k }

// IsStateTransition reports whether the node is in state k and its current transition is t.
func (n *BundleNode) IsStateTransition(t Transition, k StateKind) bool {
	return n.state == k && n.transition == t
}

// Begin starts transition t towards state s. The error of the node is
// cleared and the current transition and state are saved for RollBack.
// Begin fails while another transition is in progress, since the single
// saved slot would otherwise be overwritten.
func (n *BundleNode) Begin(t Transition, s StateKind) error {
	if n.isStateChanging {
		return fmt.Errorf("%w: %s is running %s", ErrTransitionInProgress, n.project, n.transition)
	}
	n.prevTransitionError = n.transitionError
	n.transitionError = NoError
	n.prevTransition = n.transition
	n.prevState = n.state
	n.transition = t
	n.state = s
	n.isStateChanging = true
	return nil
}

// Apply begins op from the current state using the legal-transition table.
func (n *BundleNode) Apply(op Transition) error {
	next, ok := n.state.Next(op)
	if !ok {
		return &InvalidTransitionError{Project: n.project, State: n.state, Op: op}
	}
	return n.Begin(op, next)
}

// Commit ends the transition, keeping the transition and state set by Begin.
func (n *BundleNode) Commit() {
	n.isStateChanging = false
}

// CommitTo ends the transition in a state other than the one set by Begin.
func (n *BundleNode) CommitTo(t Transition, s StateKind) {
	n.prevTransitionError = n.transitionError
	n.prevTransition = n.transition
	n.prevState = n.state
	n.transition = t
	n.state = s
	n.isStateChanging = false
}

// RollBack restores the transition, state and error saved by the last Begin.
func (n *BundleNode) RollBack() {
	n.transition = n.prevTransition
	n.state = n.prevState
	n.transitionError = n.prevTransitionError
	n.isStateChanging = false
}

func (n *BundleNode) TransitionError() TransitionError { return n.transitionError }

func (n *BundleNode) PrevTransitionError() TransitionError { return n.prevTransitionError }

func (n *BundleNode) HasTransitionError() bool { return n.transitionError != NoError }

// SetTransitionError stores e and reports whether an error was already set.
func (n *BundleNode) SetTransitionError(e TransitionError) bool {
	had := n.transitionError != NoError
	n.transitionError = e
	return had
}

// ClearTransitionError resets the error and reports whether one was set.
func (n *BundleNode) ClearTransitionError() bool {
	had := n.transitionError != NoError
	n.transitionError = NoError
	return had
}

// RemoveTransitionError clears the error only if it equals e.
func (n *BundleNode) RemoveTransitionError(e TransitionError) bool {
	if e == NoError || n.transitionError != e {
		return false
	}
	n.transitionError = NoError
	return true
}

// AddPending queues t. It reports false if t was already queued or is NoTransition.
func (n *BundleNode) AddPending(t Transition) bool { return n.pending.Add(t) }

// RemovePending reports whether t was queued.
func (n *BundleNode) RemovePending(t Transition) bool { return n.pending.Remove(t) }

// ContainsPending reports whether t is queued, removing it when remove is set.
func (n *BundleNode) ContainsPending(t Transition, remove bool) bool {
	if remove {
		return n.pending.Remove(t)
	}
	return n.pending.Contains(t)
}

func (n *BundleNode) ContainsAnyPending(ts TransitionSet) bool { return n.pending.ContainsAny(ts) }

func (n *BundleNode) ContainsAllPending(ts TransitionSet) bool { return n.pending.ContainsAll(ts) }

// AddPendingSet queues every member of ts.
func (n *BundleNode) AddPendingSet(ts TransitionSet) { n.pending = n.pending.Union(ts) }

// RemovePendingSet dequeues every member of ts.
func (n *BundleNode) RemovePendingSet(ts TransitionSet) { n.pending = n.pending.Without(ts) }

// PendingTransitions returns a copy of the queued transitions.
func (n *BundleNode) PendingTransitions() TransitionSet { return n.pending }

func (n *BundleNode) HasPending() bool { return !n.pending.Empty() }

func (n *BundleNode) String() string {
	return fmt.Sprintf("%s[%s/%s]", n.project, n.state, n.transition)
}

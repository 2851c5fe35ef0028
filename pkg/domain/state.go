package domain

import (
	"fmt"
	"strings"
)

// StateKind is the lifecycle state of a bundle node.
type StateKind uint8

const (
	// StateLess is the state of a node whose project has never been installed.
	StateLess StateKind = iota
	Uninstalled
	Installed
	Resolved
	// Starting is a resolved bundle waiting for lazy activation.
	Starting
	Active
	// Stopping is only entered when the framework reports it.
	Stopping

	stateCount
)

var stateNames = [stateCount]string{
	StateLess:   "STATELESS",
	Uninstalled: "UNINSTALLED",
	Installed:   "INSTALLED",
	Resolved:    "RESOLVED",
	Starting:    "STARTING",
	Active:      "ACTIVE",
	Stopping:    "STOPPING",
}

func (k StateKind) String() string {
	if k >= stateCount {
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
	return stateNames[k]
}

func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StateKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStateKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStateKind is the inverse of StateKind.String, ignoring case.
func ParseStateKind(s string) (StateKind, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range stateNames {
		if name == key {
			return StateKind(i), nil
		}
	}
	return StateLess, fmt.Errorf("unknown bundle state %q", s)
}

// legalTransition is one allowed (From, Op) -> To edge of the state machine.
type legalTransition struct {
	From StateKind
	Op   Transition
	To   StateKind
}

var transitionsTable = []legalTransition{
	{From: StateLess, Op: Install, To: Installed},
	{From: StateLess, Op: Uninstall, To: Uninstalled},

	{From: Uninstalled, Op: Install, To: Installed},
	{From: Uninstalled, Op: Refresh, To: Uninstalled},

	{From: Installed, Op: Resolve, To: Resolved},
	{From: Installed, Op: Uninstall, To: Uninstalled},
	{From: Installed, Op: Update, To: Installed},
	{From: Installed, Op: Refresh, To: Installed},

	{From: Resolved, Op: Unresolve, To: Installed},
	{From: Resolved, Op: Start, To: Active},
	{From: Resolved, Op: LazyActivate, To: Starting},
	{From: Resolved, Op: Uninstall, To: Uninstalled},
	{From: Resolved, Op: Update, To: Installed},
	{From: Resolved, Op: Refresh, To: Resolved},

	// Lazy bundles
	{From: Starting, Op: Start, To: Active},
	{From: Starting, Op: Stop, To: Resolved},
	{From: Starting, Op: Uninstall, To: Uninstalled},
	{From: Starting, Op: Update, To: Installed},
	{From: Starting, Op: Refresh, To: Installed},

	// The framework restarts an active bundle after update and refresh.
	{From: Active, Op: Stop, To: Resolved},
	{From: Active, Op: Uninstall, To: Uninstalled},
	{From: Active, Op: Update, To: Active},
	{From: Active, Op: Refresh, To: Active},

	{From: Stopping, Op: Stop, To: Resolved},
	{From: Stopping, Op: Uninstall, To: Uninstalled},
}

var transitionIndex = func() [stateCount]map[Transition]StateKind {
	var idx [stateCount]map[Transition]StateKind
	for _, lt := range transitionsTable {
		if idx[lt.From] == nil {
			idx[lt.From] = make(map[Transition]StateKind)
		}
		idx[lt.From][lt.Op] = lt.To
	}
	return idx
}()

// Next returns the state reached by applying op in state k.
// The boolean is false when op is not legal from k.
func (k StateKind) Next(op Transition) (StateKind, bool) {
	switch k {
	case StateLess, Uninstalled, Installed, Resolved, Starting, Active, Stopping:
		to, ok := transitionIndex[k][op]
		return to, ok
	default:
		return k, false
	}
}

// Operations lists the transitions legal from k in ordinal order.
func (k StateKind) Operations() []Transition {
	if k >= stateCount {
		return nil
	}
	var set TransitionSet
	for op := range transitionIndex[k] {
		set.Add(op)
	}
	return set.Slice()
}

// Allows reports whether op is legal from k.
func (k StateKind) Allows(op Transition) bool {
	_, ok := k.Next(op)
	return ok
}

// Framework state bits as reported by an OSGi runtime.
const (
	FrameworkUninstalled = 0x01
	FrameworkInstalled   = 0x02
	FrameworkResolved    = 0x04
	FrameworkStarting    = 0x08
	FrameworkStopping    = 0x10
	FrameworkActive      = 0x20
)

// FromFrameworkState maps an OSGi bundle state onto a StateKind.
// Unknown values map to StateLess.
func FromFrameworkState(state int) StateKind {
	switch state {
	case FrameworkUninstalled:
		return Uninstalled
	case FrameworkInstalled:
		return Installed
	case FrameworkResolved:
		return Resolved
	case FrameworkStarting:
		return Starting
	case FrameworkStopping:
		return Stopping
	case FrameworkActive:
		return Active
	default:
		return StateLess
	}
}

// FrameworkState is the inverse of FromFrameworkState. StateLess maps to 0.
func (k StateKind) FrameworkState() int {
	switch k {
	case Uninstalled:
		return FrameworkUninstalled
	case Installed:
		return FrameworkInstalled
	case Resolved:
		return FrameworkResolved
	case Starting:
		return FrameworkStarting
	case Stopping:
		return FrameworkStopping
	case Active:
		return FrameworkActive
	default:
		return 0
	}
}

package domain

import (
	"fmt"
	"strings"
)

// Transition is a named bundle lifecycle operation.
//
// The ordinal of each constant is its bit position in a TransitionSet, so
// new values must be appended before transitionCount.
type Transition uint8

const (
	NoTransition Transition = iota
	Install
	Resolve
	Unresolve
	Start
	LazyActivate
	Stop
	Uninstall
	Update
	UpdateOnActivate
	Refresh
	Reset
	Deactivate
	ActivateBundle
	ActivateProject
	External
	Build
	UpdateClasspath
	RemoveClasspath
	UpdateActivationPolicy
	UpdateDevClasspath
	RemoveProject
	RenameProject
	NewProject

	transitionCount
)

var transitionNames = [transitionCount]string{
	NoTransition:           "NOTRANSITION",
	Install:                "INSTALL",
	Resolve:                "RESOLVE",
	Unresolve:              "UNRESOLVE",
	Start:                  "START",
	LazyActivate:           "LAZY_ACTIVATE",
	Stop:                   "STOP",
	Uninstall:              "UNINSTALL",
	Update:                 "UPDATE",
	UpdateOnActivate:       "UPDATE_ON_ACTIVATE",
	Refresh:                "REFRESH",
	Reset:                  "RESET",
	Deactivate:             "DEACTIVATE",
	ActivateBundle:         "ACTIVATE_BUNDLE",
	ActivateProject:        "ACTIVATE_PROJECT",
	External:               "EXTERNAL",
	Build:                  "BUILD",
	UpdateClasspath:        "UPDATE_CLASSPATH",
	RemoveClasspath:        "REMOVE_CLASSPATH",
	UpdateActivationPolicy: "UPDATE_ACTIVATION_POLICY",
	UpdateDevClasspath:     "UPDATE_DEV_CLASSPATH",
	RemoveProject:          "REMOVE_PROJECT",
	RenameProject:          "RENAME_PROJECT",
	NewProject:             "NEW_PROJECT",
}

// Transitions returns every transition except NoTransition in ordinal order.
func Transitions() []Transition {
	out := make([]Transition, 0, transitionCount-1)
	for t := Install; t < transitionCount; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a known transition constant.
func (t Transition) Valid() bool {
	return t < transitionCount
}

func (t Transition) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Transition(%d)", uint8(t))
	}
	return transitionNames[t]
}

// Name returns the display name of the transition.
// LazyActivate is shown as START since both end in a started bundle.
// With format the name is lower-cased and underscores become spaces;
// caption additionally upper-cases the first letter.
func (t Transition) Name(format, caption bool) string {
	name := t.String()
	if t == LazyActivate {
		name = Start.String()
	}
	if !format {
		return name
	}
	name = strings.ReplaceAll(strings.ToLower(name), "_", " ")
	if caption && name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return name
}

// MarshalText implements encoding.TextMarshaler.
func (t Transition) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransition, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Transition) UnmarshalText(text []byte) error {
	parsed, err := ParseTransition(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTransition accepts the constant name in any case, with either
// underscores or spaces between words.
func ParseTransition(s string) (Transition, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	for i, name := range transitionNames {
		if name == key {
			return Transition(i), nil
		}
	}
	return NoTransition, fmt.Errorf("%w: %q", ErrUnknownTransition, s)
}

// TransitionError classifies why the last transition of a node failed.
type TransitionError uint8

const (
	NoError TransitionError = iota
	// Error is a generic failure of the attempted operation.
	Error
	// Duplicate marks a project whose symbolic name and version collide with another project.
	Duplicate
	// Cycle marks a project taking part in a dependency cycle.
	Cycle
)

var transitionErrorNames = [...]string{
	NoError:   "NOERROR",
	Error:     "ERROR",
	Duplicate: "DUPLICATE",
	Cycle:     "CYCLE",
}

func (e TransitionError) String() string {
	if int(e) >= len(transitionErrorNames) {
		return fmt.Sprintf("TransitionError(%d)", uint8(e))
	}
	return transitionErrorNames[e]
}

func (e TransitionError) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *TransitionError) UnmarshalText(text []byte) error {
	key := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, name := range transitionErrorNames {
		if name == key {
			*e = TransitionError(i)
			return nil
		}
	}
	return fmt.Errorf("unknown transition error %q", string(text))
}

package closure

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Scope widens the set of projects an activation or deactivation touches.
// It is a policy input: the engine never picks one by itself.
type Scope uint8

const (
	ScopeProviding Scope = iota
	ScopeRequiring
	ScopeProvidingAndRequiring
	ScopeRequiringAndProviding
	ScopePartialGraph
	ScopeSingle
)

var scopeNames = [...]string{
	ScopeProviding:             "providing",
	ScopeRequiring:             "requiring",
	ScopeProvidingAndRequiring: "providing_and_requiring",
	ScopeRequiringAndProviding: "requiring_and_providing",
	ScopePartialGraph:          "partial_graph",
	ScopeSingle:                "single",
}

func (s Scope) String() string {
	if int(s) >= len(scopeNames) {
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
	return scopeNames[s]
}

// ParseScope accepts the names returned by String, ignoring case and
// treating '-' and ' ' as '_'.
func ParseScope(s string) (Scope, error) {
	key := strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for i, name := range scopeNames {
		if name == key {
			return Scope(i), nil
		}
	}
	return ScopeProviding, fmt.Errorf("unknown closure scope %q", s)
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Operation names a closure consumer.
type Operation string

const (
	ActivateProject   Operation = "activate_project"
	ActivateBundle    Operation = "activate_bundle"
	DeactivateProject Operation = "deactivate_project"
	DeactivateBundle  Operation = "deactivate_bundle"
)

// Options maps operations to the scope they use.
type Options struct {
	ActivateProject   Scope `mapstructure:"activate_project" yaml:"activate_project"`
	ActivateBundle    Scope `mapstructure:"activate_bundle" yaml:"activate_bundle"`
	DeactivateProject Scope `mapstructure:"deactivate_project" yaml:"deactivate_project"`
	DeactivateBundle  Scope `mapstructure:"deactivate_bundle" yaml:"deactivate_bundle"`
}

// DefaultOptions activates with the providing closure and deactivates with
// the requiring closure, the minimum each operation needs.
func DefaultOptions() Options {
	return Options{
		ActivateProject:   ScopeProviding,
		ActivateBundle:    ScopeProviding,
		DeactivateProject: ScopeRequiring,
		DeactivateBundle:  ScopeRequiring,
	}
}

// Scope returns the scope configured for op.
func (o Options) Scope(op Operation) Scope {
	switch op {
	case ActivateBundle:
		return o.ActivateBundle
	case DeactivateProject:
		return o.DeactivateProject
	case DeactivateBundle:
		return o.DeactivateBundle
	default:
		return o.ActivateProject
	}
}

// DecodeOptions overlays raw (typically a YAML map) onto the defaults.
// Scope values may be given by name.
func DecodeOptions(raw map[string]any) (Options, error) {
	opts := DefaultOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  stringToScopeHook,
		Result:      &opts,
		ErrorUnused: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(raw); err != nil {
		return DefaultOptions(), fmt.Errorf("decoding dependency options: %w", err)
	}
	return opts, nil
}

func stringToScopeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(Scope(0)) {
		return data, nil
	}
	return ParseScope(data.(string))
}

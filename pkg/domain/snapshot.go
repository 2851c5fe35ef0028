package domain

// NodeSnapshot is the persisted and wire form of a BundleNode.
type NodeSnapshot struct {
	Project             ProjectKey      `json:"project" yaml:"project"`
	Bundle              *Bundle         `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Activation          Activation      `json:"activation" yaml:"activation"`
	State               StateKind       `json:"state" yaml:"state"`
	PrevState           StateKind       `json:"prev_state" yaml:"prev_state"`
	Transition          Transition      `json:"transition" yaml:"transition"`
	PrevTransition      Transition      `json:"prev_transition" yaml:"prev_transition"`
	TransitionError     TransitionError `json:"transition_error" yaml:"transition_error"`
	PrevTransitionError TransitionError `json:"prev_transition_error" yaml:"prev_transition_error"`
	Pending             []Transition    `json:"pending,omitempty" yaml:"pending,omitempty"`
	StateChanging       bool            `json:"state_changing,omitempty" yaml:"state_changing,omitempty"`
}

// Snapshot copies the node into its serializable form.
func (n *BundleNode) Snapshot() NodeSnapshot {
	var bundle *Bundle
	if n.bundle != nil {
		b := *n.bundle
		bundle = &b
	}
	return NodeSnapshot{
		Project:             n.project,
		Bundle:              bundle,
		Activation:          n.activation,
		State:               n.state,
		PrevState:           n.prevState,
		Transition:          n.transition,
		PrevTransition:      n.prevTransition,
		TransitionError:     n.transitionError,
		PrevTransitionError: n.prevTransitionError,
		Pending:             n.pending.Slice(),
		StateChanging:       n.isStateChanging,
	}
}

// RestoreNode rebuilds a node from a snapshot. A transition that was in
// progress when the snapshot was taken is rolled back.
func RestoreNode(s NodeSnapshot) *BundleNode {
	var bundle *Bundle
	if s.Bundle != nil {
		b := *s.Bundle
		bundle = &b
	}
	n := &BundleNode{
		project:             s.Project,
		bundle:              bundle,
		activation:          s.Activation,
		state:               s.State,
		prevState:           s.PrevState,
		transition:          s.Transition,
		prevTransition:      s.PrevTransition,
		transitionError:     s.TransitionError,
		prevTransitionError: s.PrevTransitionError,
		pending:             NewTransitionSet(s.Pending...),
		isStateChanging:     s.StateChanging,
	}
	if n.isStateChanging {
		n.RollBack()
	}
	return n
}

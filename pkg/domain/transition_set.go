package domain

import "math/bits"

// TransitionSet is a set of transitions stored as a bitset keyed by
// ordinal. The zero value is an empty set. NoTransition is never a member.
type TransitionSet uint32

// NewTransitionSet returns a set holding the given transitions.
func NewTransitionSet(ts ...Transition) TransitionSet {
	var s TransitionSet
	for _, t := range ts {
		s.Add(t)
	}
	return s
}

func bit(t Transition) TransitionSet {
	if t == NoTransition || !t.Valid() {
		return 0
	}
	return 1 << t
}

// Add inserts t and reports whether the set changed.
func (s *TransitionSet) Add(t Transition) bool {
	b := bit(t)
	if b == 0 || *s&b != 0 {
		return false
	}
	*s |= b
	return true
}

// Remove deletes t and reports whether it was present.
func (s *TransitionSet) Remove(t Transition) bool {
	b := bit(t)
	if b == 0 || *s&b == 0 {
		return false
	}
	*s &^= b
	return true
}

// Contains reports whether t is a member.
func (s TransitionSet) Contains(t Transition) bool {
	b := bit(t)
	return b != 0 && s&b != 0
}

// ContainsAny reports whether s and other share a member.
func (s TransitionSet) ContainsAny(other TransitionSet) bool {
	return s&other != 0
}

// ContainsAll reports whether every member of other is in s.
func (s TransitionSet) ContainsAll(other TransitionSet) bool {
	return s&other == other
}

// Union returns the members of either set.
func (s TransitionSet) Union(other TransitionSet) TransitionSet {
	return s | other
}

// Without returns the members of s not in other.
func (s TransitionSet) Without(other TransitionSet) TransitionSet {
	return s &^ other
}

func (s TransitionSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

func (s TransitionSet) Empty() bool {
	return s == 0
}

// Slice lists the members in ordinal order. An empty set yields nil.
func (s TransitionSet) Slice() []Transition {
	if s == 0 {
		return nil
	}
	out := make([]Transition, 0, s.Len())
	for t := Install; t < transitionCount; t++ {
		if s.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

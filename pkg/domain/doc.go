/*
Package domain contains the bundle lifecycle model of InPlace.

It defines the state machine every workspace project goes through while it
runs as a bundle, the vocabulary of transitions that move it, and the status
records jobs report. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - BundleNode: The per-project record of current and previous state, transition and error,
    plus the set of pending transitions.
  - StateKind: The closed set of bundle states with the table of legal transitions between them.
  - Transition: A named lifecycle operation (INSTALL, RESOLVE, START, ...).
  - TransitionSet: A bitset of pending transitions.
  - Status: A structured, possibly nested, report of a job outcome.

# Transactions

A node moves through a begin, commit or roll back cycle:

	if err := node.Apply(domain.Install); err != nil {
		return err
	}
	if err := install(); err != nil {
		node.RollBack()
		node.SetTransitionError(domain.Error)
		return err
	}
	node.Commit()
*/
package domain

/*
Package jobs drives bundle nodes through their lifecycle.

A Runner owns the registry, the declared dependencies and a ports.Framework.
Every job follows the same shape:

 1. Compute the closure of the requested projects.
 2. Lock those projects (see Locks).
 3. For each node, in closure order: Apply the transition, call the
    framework, then Commit, or RollBack and mark the node in error.
 4. Persist the touched nodes and report a domain.Status tree.

Activation and update closures are ordered providers first; deactivation,
uninstall and refresh closures requirers first. A circular reference never
aborts a job: its members get a CYCLE error and are left out together with
everything requiring them.

Usage:

	runner := jobs.NewRunner(reg, deps, framework, jobs.WithLogger(logger))
	status, err := runner.Activate(ctx, []domain.ProjectKey{"app"})
*/
package jobs

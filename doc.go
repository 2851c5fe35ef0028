/*
Package inplace runs the projects of a workspace in place as bundles.

Every project of the workspace is tracked by a bundle node: a small state
machine (STATELESS, UNINSTALLED, INSTALLED, RESOLVED, STARTING, ACTIVE) whose
transitions are begun, committed or rolled back as the bundle runtime
answers. Jobs (activate, deactivate, update, refresh, uninstall) compute the
dependency closure of the projects they are asked to touch, order it so
providers come before requirers (or the reverse for teardown) and drive each
node through the framework.

# Key Features

  - Transactional nodes: a failed framework call rolls the node back and marks it in error.
  - Closure policies: providing, requiring, both, the partial graph or a single project.
  - Cycle handling: members of a circular reference are excluded together with their requirers.
  - Persistence: node snapshots in memory, JSON files, BadgerDB or Redis; a transition journal in SQLite or Redis.
  - Surfaces: a cobra CLI, an HTTP inspection API with Prometheus metrics, and MCP tools.

# Usage

A workspace is described by an inplace.yaml manifest:

	projects:
	  - name: app
	    requires: [lib]
	    activated: true
	  - name: lib

Open it and activate what the manifest declares:

	ws, err := inplace.Open(ctx, "./workspace")
	if err != nil {
		log.Fatal(err)
	}
	defer ws.Close()

	status, err := ws.Sync(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(status)

Lower level access goes through ws.Runner(), which exposes every job, and
ws.Runner().Transitions(), the per-project transition facade.
*/
package inplace

/*
Package ports defines the driven ports (interfaces) of the InPlace job layer.

These interfaces decouple the lifecycle core from the bundle runtime, the
project metadata and the storage backends.

# Key Interfaces

  - DependencyReader: Declared requires and provides-to edges between projects.
  - BundleWiring: Resolved wires between installed bundles.
  - Framework: The bundle runtime (install, resolve, start, stop, ...).
  - NodeStore: Persists node snapshots.
  - Journal: Append-only transition history.
  - DistributedLocker: Cross-process per-project locking.
  - StatusHandler: Sink for job outcomes.
*/
package ports

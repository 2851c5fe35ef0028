/*
Package observability turns lifecycle events into logs, metrics and journal
entries.

Each helper returns a domain.LifecycleHooks value; combine them with Merge
and hand the result to jobs.WithLifecycleHooks.
*/
package observability

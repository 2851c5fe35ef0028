// Package transition is the facade jobs use to read and set the transition,
// error and pending state of projects and bundles without touching the
// registry directly.
package transition

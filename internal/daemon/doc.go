// Package daemon owns the long-running tagging process.
//
// It holds the single-instance lock, runs the scheduler loop in the
// background, keeps the library watcher alive alongside it, and reports a
// Status snapshot for the CLI. Tagging decisions live in the tagging package;
// the daemon only starts, stops, and observes.
package daemon

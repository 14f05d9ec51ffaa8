// Package preflight provides readiness checks for the paths, executables,
// and remote services saucetag depends on.
//
// The daemon runs RunAll before its first scan and refuses to start when a
// required check fails. "saucetag doctor" prints the same results along with
// the dependency versions from CheckSystemDeps.
package preflight

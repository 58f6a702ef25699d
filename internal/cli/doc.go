// Package cli implements the phiscrub command tree.
//
// Commands: redact, scan, serve, config, classifiers, cache and version.
// Handlers record their outcome in a package-level exit code that [Run]
// returns: 0 success, 1 redactions at or above --fail-on, 2 usage or parse
// error, 3 classifier authentication failure, 4 any other runtime error.
package cli

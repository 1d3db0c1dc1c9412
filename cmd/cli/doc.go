// Package cli constructs the cratemerge command-line interface. The root
// command rewrites crate manifests under the configured workspace roots and
// layers its settings from embedded defaults, an optional configuration file,
// CRATEMERGE_ environment variables, and command-line flags.
package cli

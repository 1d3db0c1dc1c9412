// Package consolidate rewrites Cargo manifests so that dependencies on crates
// merged into a single consolidated crate point at that crate instead.
//
// A ConsolidationPlan names the merged (legacy) crates and the crate replacing
// them. Service walks workspace roots, rewrites the dependencies and
// dev-dependencies tables of every manifest that references a legacy crate, and
// writes the manifest back only when something changed. Failures are isolated
// per manifest; only root enumeration errors stop a run.
package consolidate

// Package filesystem provides the file access seam used when reading and
// rewriting package manifests.
package filesystem

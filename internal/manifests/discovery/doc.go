// Package discovery finds package manifests beneath a workspace root.
package discovery

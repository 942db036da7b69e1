// Package cmd provides a transport-agnostic command tree: groups and leaf
// commands addressed by a path of names. How a leaf is invoked (Discord slash,
// CLI, HTTP) is defined by whoever stores handlers in it; the tree only
// guarantees a deterministic, unambiguous path -> leaf mapping.
package cmd

// Package registry pairs template manifests (the declared contract of an
// external executable) with the Go handlers that actually invoke them, and
// validates that the two sides agree before any execution starts.
package registry

// Package config defines the format-agnostic model for a workflow run. The
// HCL loader translates parsed files into this model; the graph builder and
// executor consume it without knowing anything about the source format.
package config

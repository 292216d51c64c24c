// Package adapter defines the contracts shared by resource adapters such as databases and storage.
package adapter

import "context"

// ResourceConnection is a named, closable handle on an external resource.
// Type is the adapter type from configuration ("sqlite", "postgres", "local", "gcs", ...).
type ResourceConnection interface {
	Close() error
	Type() string
	Name() string
}

// ResourceConnectionResolver looks up connections by their configured name.
// Implementations reconnect a connection that no longer answers before returning it.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}

// Package storage defines the contracts of object storage connections.
// Writers export files through a StorageConnection without knowing whether the
// objects end up in a local directory or in a GCS bucket.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// StorageExecutor defines generic object operations.
type StorageExecutor interface {
	// Upload writes data to objectName in bucket. An empty bucket selects the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named, typed storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider opens the connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves the named connection, opening it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
	// ForceReconnect closes and re-opens the named connection.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves storage connections by name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveStorageConnection resolves a StorageConnection by name.
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the Fx group that collects all StorageProvider implementations.
const StorageProviderGroup = "storage_providers"

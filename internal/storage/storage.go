// Package storage provides durable asset storage for relocated videos.
// It defines the AssetStore interface (port) for hexagonal architecture and
// implementations for S3 and local disk.
package storage

import (
	"context"
	"io"
)

// StoredAsset describes an asset persisted in durable storage.
type StoredAsset struct {
	// URL is the stable, publicly reachable URL of the asset.
	URL string
	// Key is the storage-side identifier of the asset.
	Key string
}

// AssetStore defines the interface for durable asset storage.
// Implementations must return a stable URL for every stored asset.
type AssetStore interface {
	// Upload stores the data under the given key and returns the stored
	// asset's stable URL and key.
	Upload(ctx context.Context, key string, data io.Reader) (StoredAsset, error)
}

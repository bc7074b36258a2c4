package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStore implements AssetStore.
var _ AssetStore = (*LocalStore)(nil)

// LocalStore stores assets on local disk and serves them from the
// application's own /assets/ path. Suitable for development; production
// deployments use S3Store.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a new LocalStore instance.
// The dir parameter specifies where assets are stored; if empty,
// a directory under os.TempDir() is used. baseURL is the externally
// reachable base URL of the application, used to build asset URLs.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "restyle-assets")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}

	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Dir returns the directory assets are stored in.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Upload writes the data to disk under the given key.
func (s *LocalStore) Upload(ctx context.Context, key string, data io.Reader) (StoredAsset, error) {
	select {
	case <-ctx.Done():
		return StoredAsset{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	// Keys may contain path separators; keep writes inside the asset dir.
	cleaned := filepath.Clean("/" + key)
	path := filepath.Join(s.dir, cleaned)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return StoredAsset{}, fmt.Errorf("create asset subdirectory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path is rooted in the asset dir
	if err != nil {
		return StoredAsset{}, fmt.Errorf("create asset file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return StoredAsset{}, fmt.Errorf("write asset file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return StoredAsset{}, fmt.Errorf("close asset file: %w", err)
	}

	return StoredAsset{
		URL: s.baseURL + "/assets/" + strings.TrimPrefix(cleaned, "/"),
		Key: strings.TrimPrefix(cleaned, "/"),
	}, nil
}

// Package bootstrap provides dependency initialization for the restyle API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/restylehq/restyle-api/internal/auth"
	"github.com/restylehq/restyle-api/internal/config"
	"github.com/restylehq/restyle-api/internal/events"
	"github.com/restylehq/restyle-api/internal/fal"
	"github.com/restylehq/restyle-api/internal/generation"
	"github.com/restylehq/restyle-api/internal/relocate"
	"github.com/restylehq/restyle-api/internal/sqlite"
	"github.com/restylehq/restyle-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service       *generation.Service
	Bus           *events.Bus
	Authenticator auth.Authenticator
	Store         *sqlite.Store
	// AssetDir is non-empty when local asset storage is in use.
	AssetDir string
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	assetStore, assetDir, err := initAssetStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	falClient, err := fal.NewClient(cfg.FalModel,
		fal.WithAPIKey(cfg.FalAPIKey),
		fal.WithBaseURL(cfg.FalBaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create fal client: %w", err)
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create sqlite store: %w", err)
	}

	relocator := relocate.New(assetStore, logger)
	bus := events.NewBus()

	svc := generation.NewService(
		store,
		falClient,
		relocator,
		cfg.WebhookURL(),
		logger,
		generation.WithPublisher(bus),
	)

	return &Dependencies{
		Service:       svc,
		Bus:           bus,
		Authenticator: auth.NewStaticTokens(cfg.APITokens),
		Store:         store,
		AssetDir:      assetDir,
	}, nil
}

// initAssetStore creates the appropriate asset store based on configuration.
// When S3 is not configured, assets are kept on local disk and served by the
// application itself.
func initAssetStore(cfg *config.Config, logger *slog.Logger) (storage.AssetStore, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Store(s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 store: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, "", nil
	}

	localStore, err := storage.NewLocalStore(cfg.DataDir+"/assets", cfg.PublicBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create local store: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("dir", localStore.Dir()),
	)
	return localStore, localStore.Dir(), nil
}

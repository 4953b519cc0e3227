package persist

import (
	"context"
	"fmt"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/logging"
)

// Open creates the store selected by cfg.StoreBackend, wrapped with retries.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.StoreBackend {
	case "memory":
		s = NewMemory()
	case "local":
		s, err = NewLocal(cfg.LocalStoragePath)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		s, err = NewSQLite(ctx, cfg.SQLitePath)
	case "s3":
		s, err = NewS3(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	logging.Info("store opened", logging.String("backend", s.Type()))

	rc := DefaultRetryConfig()
	rc.MaxAttempts = cfg.SaveAttempts
	rc.InitialWait = cfg.SaveInitialWait
	rc.Timeout = cfg.SaveTimeout
	return WithRetry(s, rc), nil
}

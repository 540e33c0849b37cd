package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/feedback"
	"github.com/mailguard/mailguard/pkg/learning"
)

// openStores builds the feedback and model stores selected by the
// learning backend configuration
func openStores(cfg *config.Config, logger *zap.Logger) (feedback.Store, learning.Store, error) {
	switch cfg.Learning.Backend {
	case "memory":
		return feedback.NewMemoryStore(), learning.NewMemoryStore(), nil

	case "sqlite":
		fbStore, err := feedback.NewSQLiteStore(cfg.Learning.SQLite.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open feedback store: %v", err)
		}

		modelStore, err := learning.NewSQLiteStore(cfg.Learning.SQLite.Path)
		if err != nil {
			fbStore.Close()
			return nil, nil, fmt.Errorf("failed to open model store: %v", err)
		}

		return fbStore, modelStore, nil

	case "redis":
		fbStore, err := feedback.NewRedisStore(cfg.Learning.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect feedback store: %v", err)
		}

		modelStore, err := learning.NewRedisStore(cfg.Learning.Redis)
		if err != nil {
			fbStore.Close()
			return nil, nil, fmt.Errorf("failed to connect model store: %v", err)
		}

		return fbStore, modelStore, nil
	}

	return nil, nil, fmt.Errorf("unknown learning backend: %s", cfg.Learning.Backend)
}

package investigation

import (
	"context"
	"sync"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/config"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

var (
	defaultMu      sync.Mutex
	defaultService *Service
)

// Init assembles the process-wide default service. Calling Init twice
// without an intervening Shutdown is a startup error.
func Init(cfg *config.Config, opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultService != nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"investigation service already initialized")
	}
	service, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defaultService = service
	return nil
}

// Default returns the process-wide service, or nil before Init.
func Default() *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultService
}

// Shutdown tears the default service down and clears it, so Init may be
// called again.
func Shutdown(ctx context.Context) error {
	defaultMu.Lock()
	service := defaultService
	defaultService = nil
	defaultMu.Unlock()

	if service == nil {
		return nil
	}
	return service.Shutdown(ctx)
}

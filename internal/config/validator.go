package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validating config", err)
		}
		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
		}
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"invalid configuration: "+strings.Join(messages, "; "))
	}

	if cfg.Engine.QualityThreshold < 0 || cfg.Engine.QualityThreshold > 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("engine.quality_threshold must be in [0,1], got %v", cfg.Engine.QualityThreshold))
	}
	if cfg.Engine.MaxAttempts < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "engine.max_attempts must be >= 0")
	}
	if cfg.Pool.GlobalCap < 0 || cfg.Pool.DefaultCapabilityCap < 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "pool caps must be >= 0")
	}
	for capability, cap := range cfg.Pool.PerCapability {
		if cap <= 0 {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("pool.per_capability[%s] must be > 0", capability))
		}
	}

	seen := make(map[string]bool, len(cfg.Sources.Endpoints))
	for _, source := range cfg.Sources.Endpoints {
		if seen[source.Name] {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("duplicate source name %q", source.Name))
		}
		seen[source.Name] = true
	}

	if cfg.Store.Enabled && cfg.Store.Path == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			"store.path is required when store.enabled")
	}
	return nil
}

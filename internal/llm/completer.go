// Package llm provides the narrative completion interface used by the report
// synthesis agent, with a langchaingo-backed implementation and a
// deterministic template fallback when no provider is configured.
package llm

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Completer turns a prompt into a completion. Implementations must honor ctx
// cancellation.
type Completer interface {
	// Name identifies the backing provider for logging.
	Name() string

	// Complete generates a completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig selects and configures a completion provider.
type ProviderConfig struct {
	// Provider is one of "openai", "anthropic", or "" for the template
	// fallback.
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model overrides the provider default model.
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey falls back to the provider's conventional environment
	// variable when empty.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature controls sampling. Reports want low values.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// NewCompleter builds a Completer for the configured provider. An empty
// provider name yields nil, nil: callers fall back to templates.
func NewCompleter(cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return newOpenAICompleter(cfg)
	case "anthropic":
		return newAnthropicCompleter(cfg)
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			"unknown llm provider "+cfg.Provider)
	}
}

// modelCompleter adapts any langchaingo model to Completer.
type modelCompleter struct {
	name  string
	model llms.Model
	cfg   ProviderConfig
}

func (c *modelCompleter) Name() string { return c.name }

func (c *modelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var opts []llms.CallOption
	if c.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.cfg.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(c.cfg.Temperature))

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		return "", types.WrapError(types.NODE_EXECUTION_FAILED,
			c.name+" completion failed", err)
	}
	return out, nil
}

func newOpenAICompleter(cfg ProviderConfig) (Completer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
			"initializing openai provider", err)
	}
	return &modelCompleter{name: "openai", model: client, cfg: cfg}, nil
}

func newAnthropicCompleter(cfg ProviderConfig) (Completer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, anthropic.WithModel(cfg.Model))
	}
	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
			"initializing anthropic provider", err)
	}
	return &modelCompleter{name: "anthropic", model: client, cfg: cfg}, nil
}

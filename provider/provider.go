// Package provider abstracts the text-generation backend the engine
// consults. Any backend satisfying Provider is interchangeable.
package provider

import (
	"context"
	"errors"
	"os"

	"github.com/mohammad-safakhou/sitebot/config"
	openai_provider "github.com/mohammad-safakhou/sitebot/provider/openai"
)

// Provider is the interface all LLM implementations must satisfy.
type Provider interface {
	// Generate produces text for prompt using the configured model key.
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
	// GenerateWithTokens additionally reports prompt/completion token usage.
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
}

// NewProvider creates an LLM client from configuration. The first
// configured provider wins; only OpenAI-compatible backends are supported.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no LLM providers configured")
	}
	for _, p := range cfg.Providers {
		if p.Type != "openai" {
			continue
		}
		if p.APIKey == "" {
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if p.APIKey == "" {
			return nil, errors.New("OpenAI API key not configured (llm.providers or OPENAI_API_KEY)")
		}
		return openai_provider.NewClient(p), nil
	}
	return nil, errors.New("no supported LLM provider configured (need an openai type)")
}

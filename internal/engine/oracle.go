package engine

import (
	"context"

	"github.com/mohammad-safakhou/sitebot/config"
	"github.com/mohammad-safakhou/sitebot/provider"
)

// Oracle is the text-generation backend the loop consults. Decide returns
// the raw oracle text; parsing lives in the engine because oracle output
// is untrusted and occasionally malformed. Any backend satisfying this
// contract is interchangeable.
type Oracle interface {
	Decide(ctx context.Context, contextSummary string) (string, error)
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// LLMOracle adapts an LLM provider to the Oracle contract, routing the
// decision and synthesis roles to their configured models.
type LLMOracle struct {
	provider provider.Provider
	routing  config.LLMRoutingConfig
}

// NewLLMOracle wires a provider and routing table into an Oracle.
func NewLLMOracle(p provider.Provider, routing config.LLMRoutingConfig) *LLMOracle {
	return &LLMOracle{provider: p, routing: routing}
}

func (o *LLMOracle) Decide(ctx context.Context, contextSummary string) (string, error) {
	model := o.routing.ModelFor("decision")
	return o.provider.Generate(ctx, contextSummary, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  600,
	})
}

func (o *LLMOracle) Synthesize(ctx context.Context, prompt string) (string, error) {
	model := o.routing.ModelFor("synthesis")
	return o.provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  1400,
	})
}

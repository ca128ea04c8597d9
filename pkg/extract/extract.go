package extract

import (
	"context"

	"docrag/pkg/common"
	"docrag/pkg/logger"
)

// Result is the output of one extraction pass over a text block.
type Result struct {
	Entities  []common.Entity
	Relations []common.Relation
	DocType   string
}

// Strategy is one extraction capability in the fallback chain. A strategy
// that does not apply to the input (disabled capability, wrong input shape)
// returns an empty Result with a nil error; errors are reserved for attempts
// that actually ran and failed.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, content string, docTypeHint string) (Result, error)
}

// Chain tries strategies in priority order until one yields entities.
// Failures never propagate past the chain; a strategy error degrades to the
// next strategy, and an exhausted chain returns an empty result with the
// caller's doc type hint.
type Chain struct {
	strategies []Strategy
}

// NewChain builds an extraction chain. Nil strategies are skipped so callers
// can pass conditionally constructed capabilities directly.
func NewChain(strategies ...Strategy) *Chain {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Chain{strategies: out}
}

// Extract runs the chain over content. The returned DocType is the hint
// unless a strategy refined it.
func (c *Chain) Extract(ctx context.Context, content string, docTypeHint string) Result {
	for _, strategy := range c.strategies {
		res, err := strategy.Extract(ctx, content, docTypeHint)
		if err != nil {
			logger.Debug("extraction strategy failed", "strategy", strategy.Name(), "error", err)
			continue
		}
		if len(res.Entities) == 0 {
			continue
		}
		if res.DocType == "" {
			res.DocType = docTypeHint
		}
		logger.Debug("extraction strategy produced entities",
			"strategy", strategy.Name(),
			"entities", len(res.Entities),
			"relations", len(res.Relations),
		)
		return res
	}

	return Result{DocType: docTypeHint}
}

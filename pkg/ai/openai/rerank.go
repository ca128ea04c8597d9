package openai

import (
	"context"
	"fmt"
	"strings"

	"docrag/pkg/ai"
)

type rerankResponse struct {
	Scores []float64 `json:"scores" jsonschema_description:"One relevance score per passage, in input order"`
}

// RerankPassages scores each passage against the query with the chat model
// acting as a pairwise relevance judge. Scores are on a 0-10 scale and are
// only meaningful for ordering candidates of the same request.
func (c *Client) RerankPassages(ctx context.Context, query string, passages []string) ([]float64, error) {
	if c.chat == nil {
		return nil, ErrChatUnavailable
	}
	if len(passages) == 0 {
		return nil, nil
	}

	var listing strings.Builder
	for i, passage := range passages {
		fmt.Fprintf(&listing, "%d. %s\n", i+1, passage)
	}

	prompt := fmt.Sprintf(ai.RerankPrompt, query, listing.String())

	var res rerankResponse
	err := c.GenerateCompletionWithFormat(
		ctx,
		"rerank_passages",
		"Score passages for relevance against a query.",
		prompt,
		&res,
		ai.WithSystemPrompts(ai.RerankSystemPrompt),
	)
	if err != nil {
		return nil, err
	}
	if len(res.Scores) != len(passages) {
		return nil, fmt.Errorf("rerank score count mismatch: got %d want %d", len(res.Scores), len(passages))
	}

	return res.Scores, nil
}

package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for the given input using the
// configured embedding model on Ollama. Blank input embeds to a zero vector
// without a server round trip.
func (c *Client) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if strings.TrimSpace(string(input)) == "" {
		return make([]float32, max(c.embeddingDim, 0)), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Second*time.Duration(c.timeoutSec))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.api.Embed(rCtx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding response")
	}

	vec := make([]float32, 0, len(res.Embeddings[0]))
	for _, v := range res.Embeddings[0] {
		vec = append(vec, float32(v))
	}
	return fitDimension(vec, c.embeddingDim), nil
}

// GenerateEmbeddings embeds each input sequentially; the Ollama embed API is
// single-input per request for the models this backend targets.
func (c *Client) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := c.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func fitDimension(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == dim {
		return vec
	}
	if len(vec) > dim {
		return vec[:dim]
	}
	padded := make([]float32, dim)
	copy(padded, vec)
	return padded
}

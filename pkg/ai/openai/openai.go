package openai

import (
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client talks to an OpenAI-compatible endpoint (OpenAI, OpenRouter, ...)
// for chat completions, embeddings and passage reranking.
//
// A Client should be created using NewClient.
type Client struct {
	chatModel      string
	embeddingModel string

	embeddingDim int

	chatTimeoutSec  int
	embedTimeoutSec int

	chat  *openai.Client
	embed *openai.Client
}

// NewClientParams defines the configuration for creating a new Client.
// ChatURL/ChatKey and EmbeddingURL/EmbeddingKey configure the two endpoints
// separately so completions can run against a router while embeddings run
// against a dedicated embedding host.
type NewClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	// EmbeddingDim pads or truncates returned vectors to a fixed width.
	// Zero keeps the model's native dimensionality.
	EmbeddingDim int

	ChatTimeoutSec  int
	EmbedTimeoutSec int
}

// NewClient creates a Client configured with the provided parameters. An
// endpoint with an empty API key is left nil and the corresponding
// capability reports itself unavailable.
func NewClient(params NewClientParams) *Client {
	chatTimeout := params.ChatTimeoutSec
	if chatTimeout <= 0 {
		chatTimeout = 30
	}
	embedTimeout := params.EmbedTimeoutSec
	if embedTimeout <= 0 {
		embedTimeout = 60
	}

	return &Client{
		chatModel:       params.ChatModel,
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    params.EmbeddingDim,
		chatTimeoutSec:  chatTimeout,
		embedTimeoutSec: embedTimeout,
		chat:            newAPIClient(params.ChatURL, params.ChatKey),
		embed:           newAPIClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newAPIClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)
	return &client
}

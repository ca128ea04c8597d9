package ollama

import (
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Client implements the completion and embedding capabilities against a
// locally hosted Ollama server, for deployments without a hosted LLM
// endpoint.
type Client struct {
	chatModel      string
	embeddingModel string

	embeddingDim int
	timeoutSec   int

	reqLock *semaphore.Weighted

	api *api.Client
}

// NewClientParams contains configuration options for creating a new Client.
type NewClientParams struct {
	ChatModel      string
	EmbeddingModel string

	BaseURL string
	APIKey  string

	EmbeddingDim          int
	TimeoutSec            int
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewClient creates an Ollama-backed client. It connects to the server at
// BaseURL (or the Ollama default if empty).
func NewClient(params NewClientParams) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.APIKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	concurrency := params.MaxConcurrentRequests
	if concurrency <= 0 {
		concurrency = 4
	}
	timeout := params.TimeoutSec
	if timeout <= 0 {
		timeout = 120
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embeddingDim:   params.EmbeddingDim,
		timeoutSec:     timeout,
		reqLock:        semaphore.NewWeighted(concurrency),
		api:            api.NewClient(u, httpClient),
	}, nil
}

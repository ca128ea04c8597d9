package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docrag/pkg/ai"
	"docrag/pkg/common"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultPromptTokenBudget = 1500
	defaultLLMTimeoutSec     = 30
)

type llmPayload struct {
	DocType   string            `json:"doc_type"`
	Entities  []common.Entity   `json:"entities"`
	Relations []common.Relation `json:"relations"`
}

// LLMStrategy extracts entities and relations by asking a language model for
// a JSON knowledge graph over the document. The model response may wrap the
// JSON in prose or code fences; the strategy isolates and repairs it before
// parsing.
type LLMStrategy struct {
	client       ai.CompletionClient
	tokenEncoder string
	tokenBudget  int
	timeoutSec   int
}

// LLMStrategyParams configures an LLMStrategy. TokenBudget bounds the
// document prefix handed to the model; TokenEncoder names the tiktoken
// encoding used to measure it.
type LLMStrategyParams struct {
	Client       ai.CompletionClient
	TokenEncoder string
	TokenBudget  int
	TimeoutSec   int
}

// NewLLMStrategy builds the LLM extraction strategy. A nil client yields a
// strategy that reports itself inapplicable, so the chain falls through.
func NewLLMStrategy(params LLMStrategyParams) *LLMStrategy {
	encoder := params.TokenEncoder
	if encoder == "" {
		encoder = "o200k_base"
	}
	budget := params.TokenBudget
	if budget <= 0 {
		budget = defaultPromptTokenBudget
	}
	timeout := params.TimeoutSec
	if timeout <= 0 {
		timeout = defaultLLMTimeoutSec
	}
	return &LLMStrategy{
		client:       params.Client,
		tokenEncoder: encoder,
		tokenBudget:  budget,
		timeoutSec:   timeout,
	}
}

func (s *LLMStrategy) Name() string { return "llm" }

func (s *LLMStrategy) Extract(ctx context.Context, content string, docTypeHint string) (Result, error) {
	if s.client == nil || strings.TrimSpace(content) == "" {
		return Result{DocType: docTypeHint}, nil
	}

	truncated, err := s.truncate(content)
	if err != nil {
		return Result{}, err
	}

	hint := docTypeHint
	if hint == "" {
		hint = "unknown"
	}
	prompt := fmt.Sprintf(ai.ExtractPrompt, hint, truncated)

	rCtx, cancel := context.WithTimeout(ctx, time.Second*time.Duration(s.timeoutSec))
	defer cancel()

	raw, err := s.client.GenerateCompletion(
		rCtx,
		prompt,
		ai.WithSystemPrompts(ai.ExtractSystemPrompt),
		ai.WithTemperature(0.1),
	)
	if err != nil {
		return Result{}, err
	}

	var payload llmPayload
	if err := ai.UnmarshalFlexible(ai.ExtractJSONBlock(raw), &payload); err != nil {
		return Result{}, fmt.Errorf("parse extraction response: %w", err)
	}

	entities := make([]common.Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		if e.Value == "" {
			e.Value = e.Text
		}
		entities = append(entities, e)
	}

	docType := payload.DocType
	if docType == "" {
		docType = docTypeHint
	}

	return Result{
		Entities:  entities,
		Relations: payload.Relations,
		DocType:   docType,
	}, nil
}

func (s *LLMStrategy) truncate(content string) (string, error) {
	enc, err := tiktoken.GetEncoding(s.tokenEncoder)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(content, nil, nil)
	if len(tokens) <= s.tokenBudget {
		return content, nil
	}
	return enc.Decode(tokens[:s.tokenBudget]), nil
}

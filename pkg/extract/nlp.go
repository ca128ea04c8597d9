package extract

import (
	"context"
	"strings"

	"docrag/pkg/common"

	prose "github.com/jdkato/prose/v2"
)

// nlpAllowedTags is the fixed tag set the statistical fallback keeps.
var nlpAllowedTags = map[string]struct{}{
	common.TypeOrg:     {},
	common.TypePerson:  {},
	common.TypeMoney:   {},
	common.TypeProduct: {},
	common.TypeGPE:     {},
	common.TypeDate:    {},
}

// NLPStrategy is the last-resort extraction path: a pretrained in-process
// named-entity tagger. It guarantees some structure even with no network
// capability configured, at the cost of producing entities without
// relations.
type NLPStrategy struct{}

// NewNLPStrategy builds the statistical NLP fallback strategy.
func NewNLPStrategy() *NLPStrategy {
	return &NLPStrategy{}
}

func (s *NLPStrategy) Name() string { return "nlp" }

func (s *NLPStrategy) Extract(ctx context.Context, content string, docTypeHint string) (Result, error) {
	if strings.TrimSpace(content) == "" {
		return Result{DocType: docTypeHint}, nil
	}

	doc, err := prose.NewDocument(content, prose.WithSegmentation(false))
	if err != nil {
		return Result{}, err
	}

	var entities []common.Entity
	for _, ent := range doc.Entities() {
		if _, ok := nlpAllowedTags[ent.Label]; !ok {
			continue
		}
		entities = append(entities, common.Entity{
			Text:  ent.Text,
			Type:  ent.Label,
			Value: ent.Text,
		})
	}

	return Result{
		Entities: entities,
		DocType:  docTypeHint,
	}, nil
}

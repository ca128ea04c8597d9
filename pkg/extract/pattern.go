package extract

import (
	"context"
	"regexp"
	"strings"

	"docrag/pkg/common"
)

// DocTypeStructured is the doc type the pattern strategy assigns to records
// it could parse.
const DocTypeStructured = "structured"

var labelValueRe = regexp.MustCompile(`([A-Za-z][A-Za-z\s]*):\s*([^\n]+)`)

// PatternStrategy extracts entities from clearly labeled "Label: Value"
// records. It gives a deterministic, explainable baseline for structured
// exports where the model path produced nothing.
//
// The label classifies the value: "id" labels become ID entities and the
// value is remembered as the record's anchor; every later non-ID entity is
// linked to that anchor via a has_{label} relation.
type PatternStrategy struct{}

// NewPatternStrategy builds the pattern extraction strategy.
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{}
}

func (s *PatternStrategy) Name() string { return "pattern" }

func (s *PatternStrategy) Extract(ctx context.Context, content string, docTypeHint string) (Result, error) {
	if !strings.Contains(content, ":") {
		return Result{DocType: docTypeHint}, nil
	}

	var (
		entities  []common.Entity
		relations []common.Relation
		anchorID  string
	)

	for _, match := range labelValueRe.FindAllStringSubmatch(content, -1) {
		label := strings.TrimSpace(match[1])
		value := strings.TrimSpace(match[2])

		if value == "" {
			continue
		}
		switch strings.ToLower(value) {
		case "none", "null":
			continue
		}

		entityType := classifyLabel(label, value)
		if entityType == common.TypeID {
			anchorID = value
		}

		entities = append(entities, common.Entity{
			Text:  value,
			Type:  entityType,
			Value: value,
		})

		if anchorID != "" && value != anchorID {
			relationName := "has_" + strings.ReplaceAll(strings.ToLower(label), " ", "_")
			relations = append(relations, common.Relation{
				Source:   anchorID,
				Target:   value,
				Relation: relationName,
			})
		}
	}

	if len(entities) == 0 {
		return Result{DocType: docTypeHint}, nil
	}

	return Result{
		Entities:  entities,
		Relations: relations,
		DocType:   DocTypeStructured,
	}, nil
}

func classifyLabel(label, value string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "id"):
		return common.TypeID
	case strings.Contains(lower, "client"), strings.Contains(lower, "company"):
		return common.TypeOrg
	case strings.Contains(lower, "name") && strings.Contains(lower, "deal"):
		return common.TypeProduct
	case strings.Contains(lower, "amount"), strings.Contains(lower, "price"), strings.Contains(value, "$"):
		return common.TypeMoney
	case strings.Contains(lower, "status"):
		return common.TypeStatus
	case strings.Contains(lower, "date"), strings.Contains(lower, "on"):
		return common.TypeDate
	default:
		return common.TypeValue
	}
}

package query

import (
	"context"
	"regexp"
	"strings"

	"docrag/pkg/common"
	"docrag/pkg/graph"
	"docrag/pkg/logger"
)

// listLimit caps the number of items returned by a list query.
const listLimit = 10

// idPattern matches standalone three-digit record identifiers inside node
// text, so one logical record spread over several nodes counts once.
var idPattern = regexp.MustCompile(`\b(\d{3})\b`)

// Result is the answer to a structured (count or list) query. Items carries
// the matched nodes' attributes for list queries.
type Result struct {
	Count     int                `json:"count"`
	Items     []common.NodeAttrs `json:"items"`
	QueryType string             `json:"query_type"`
}

// StructuredEngine answers count and list questions directly from the graph
// node set, without retrieval.
type StructuredEngine struct {
	graph *graph.Builder
}

// NewStructuredEngine creates a StructuredEngine over the given graph.
func NewStructuredEngine(g *graph.Builder) *StructuredEngine {
	return &StructuredEngine{graph: g}
}

// Count counts records matching entityType, optionally narrowed by a time
// filter. When the matched nodes carry standalone numeric identifiers the
// count is the number of distinct identifiers; otherwise it is the raw node
// count.
func (s *StructuredEngine) Count(ctx context.Context, userID string, entityType string, timeFilter string) Result {
	matched := s.matchNodes(ctx, userID, entityType, timeFilter)
	count := countRecords(matched)

	logger.Debug("structured count", "user_id", userID, "entity_type", entityType, "count", count)
	return Result{Count: count, QueryType: TypeCount}
}

// List returns a capped listing of records matching entityType. The count
// carries the same record semantics as Count, so a list over nodes that
// share identifiers still reports distinct records.
func (s *StructuredEngine) List(ctx context.Context, userID string, entityType string, timeFilter string) Result {
	matched := s.matchNodes(ctx, userID, entityType, timeFilter)

	items := matched
	if len(items) > listLimit {
		items = items[:listLimit]
	}

	return Result{Count: countRecords(matched), Items: items, QueryType: TypeList}
}

// countRecords counts distinct record identifiers found in the matched node
// texts. Values are excluded on purpose: a normalized amount like "500"
// would otherwise masquerade as an identifier. When no text carries an
// identifier the raw node count is the answer.
func countRecords(matched []common.NodeAttrs) int {
	ids := make(map[string]struct{})
	for _, node := range matched {
		for _, m := range idPattern.FindAllString(node.EntityText, -1) {
			ids[m] = struct{}{}
		}
	}
	if len(ids) > 0 {
		return len(ids)
	}
	return len(matched)
}

// matchNodes selects nodes whose entity_text or doc_type contains the
// requested entity type, trying both the given form and its singular.
func (s *StructuredEngine) matchNodes(ctx context.Context, userID string, entityType string, timeFilter string) []common.NodeAttrs {
	nodes := s.graph.Nodes(ctx, userID)
	if len(nodes) == 0 {
		return nil
	}

	needle := strings.ToLower(entityType)
	singular := strings.TrimRight(needle, "s")

	var matched []common.NodeAttrs
	for _, node := range nodes {
		text := strings.ToLower(node.EntityText)
		docType := strings.ToLower(node.DocType)

		hit := strings.Contains(text, needle) || strings.Contains(docType, needle)
		if !hit && singular != needle {
			hit = strings.Contains(text, singular) || strings.Contains(docType, singular)
		}
		if !hit {
			continue
		}
		if !passesTimeFilter(node, timeFilter) {
			continue
		}
		matched = append(matched, node)
	}
	return matched
}

// timeBuckets are the recognized time ranges, matched by keyword so that
// analyzer phrasings like "from last week" still engage the bucket.
var timeBuckets = []string{"yesterday", "last week", "last month"}

// passesTimeFilter applies the time bucket from query analysis. Buckets
// currently only require the node to carry a created_at stamp; they do not
// compare it against the bucket boundaries yet.
// TODO: compare created_at against the bucket window once upstream parsers
// agree on a timestamp format.
func passesTimeFilter(node common.NodeAttrs, timeFilter string) bool {
	filter := strings.ToLower(strings.TrimSpace(timeFilter))
	if filter == "" || filter == "null" {
		return true
	}
	for _, bucket := range timeBuckets {
		if strings.Contains(filter, bucket) {
			if node.Metadata == nil {
				return false
			}
			_, ok := node.Metadata["created_at"]
			return ok
		}
	}
	return true
}

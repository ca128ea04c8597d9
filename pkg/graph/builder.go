package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"docrag/internal/util"
	"docrag/pkg/common"
	"docrag/pkg/extract"
	"docrag/pkg/logger"
	"docrag/pkg/store"
)

// Builder owns the per-user knowledge graphs: node identity and merge rules,
// lazy loading from durable storage, persistence after every mutating build,
// and best-effort mirror replication.
//
// Writes to one user's graph are serialized by a per-user lock; query paths
// take the same lock in read mode so they never observe a half-applied
// build.
type Builder struct {
	chain  *extract.Chain
	store  store.UserStore
	mirror store.Mirror

	locks *util.KeyedMutex

	mu     sync.Mutex
	graphs map[string]*Graph
}

// NewBuilderParams configures a Builder. Mirror may be nil when no mirror
// store is deployed.
type NewBuilderParams struct {
	Chain  *extract.Chain
	Store  store.UserStore
	Mirror store.Mirror
}

// NewBuilder creates a Builder with empty in-memory state; per-user graphs
// load lazily from the store on first access.
func NewBuilder(params NewBuilderParams) *Builder {
	return &Builder{
		chain:  params.Chain,
		store:  params.Store,
		mirror: params.Mirror,
		locks:  util.NewKeyedMutex(),
		graphs: make(map[string]*Graph),
	}
}

// mirrorRetries bounds attempts for best-effort mirror writes.
const mirrorRetries = 3

// BuildResult reports the outcome of one ingestion batch.
type BuildResult struct {
	NodesAdded     int    `json:"nodes_added"`
	DocType        string `json:"doc_type"`
	SkippedRecords int    `json:"skipped_records"`
}

// Build runs the extraction chain over each record and folds the results
// into the user's graph. Records with trivial content are skipped without
// aborting the batch. The whole graph is persisted once after the batch; a
// persistence failure is returned to the caller even though the in-memory
// graph has already mutated.
func (b *Builder) Build(
	ctx context.Context,
	records []common.Record,
	fileID string,
	userID string,
	docTypeHint string,
) (BuildResult, error) {
	result := BuildResult{DocType: docTypeHint}
	if len(records) == 0 {
		logger.Warn("no records to process", "file_id", fileID)
		return result, nil
	}

	unlock := b.locks.Lock(userID)
	defer unlock()

	g := b.getOrLoad(ctx, userID)
	if g == nil {
		g = NewGraph()
		b.setGraph(userID, g)
	}

	for _, record := range records {
		content := record.Content()
		if common.IsTrivialContent(content) {
			result.SkippedRecords++
			continue
		}

		extracted := b.chain.Extract(ctx, content, docTypeHint)
		if extracted.DocType != "" {
			result.DocType = extracted.DocType
		}

		result.NodesAdded += upsertEntities(g, extracted.Entities, fileID, result.DocType, record)
		applyRelations(g, extracted.Relations, fileID, result.DocType, record)

		if len(extracted.Relations) == 0 && len(extracted.Entities) > 0 {
			applyHubFallback(g, extracted.Entities)
		}
	}

	if err := b.persist(ctx, userID, g); err != nil {
		return result, err
	}

	logger.Info("graph build completed",
		"user_id", userID,
		"file_id", fileID,
		"nodes_added", result.NodesAdded,
		"doc_type", result.DocType,
	)

	return result, nil
}

// upsertEntities adds one node per entity, normalizing MONEY values, and
// returns the number of upserts performed.
func upsertEntities(g *Graph, entities []common.Entity, fileID, docType string, record common.Record) int {
	added := 0
	for _, entity := range entities {
		value := entity.Value
		if value == "" {
			value = entity.Text
		}
		if entity.Type == common.TypeMoney {
			value = NormalizeMoney(value)
		}

		g.AddNode(common.NodeKey(entity.Text, entity.Type), common.NodeAttrs{
			EntityText:  entity.Text,
			EntityType:  entity.Type,
			EntityValue: value,
			FileID:      fileID,
			DocType:     docType,
			Metadata:    record,
		})
		added++
	}
	return added
}

// applyRelations resolves each relation endpoint against the full node set
// by exact entity_text or entity_value match. A resolvable source with an
// unresolvable target synthesizes the target node, inferring its type from
// the relation label.
func applyRelations(g *Graph, relations []common.Relation, fileID, docType string, record common.Record) {
	for _, rel := range relations {
		sourceKey := resolveEndpoint(g, rel.Source)
		targetKey := resolveEndpoint(g, rel.Target)

		if sourceKey != "" && targetKey == "" {
			targetType := inferTypeFromRelation(rel.Relation)
			targetKey = common.NodeKey(rel.Target, targetType)
			g.AddNode(targetKey, common.NodeAttrs{
				EntityText:  rel.Target,
				EntityType:  targetType,
				EntityValue: rel.Target,
				FileID:      fileID,
				DocType:     docType,
				Metadata:    record,
			})
			logger.Debug("created missing relation target", "target", rel.Target, "type", targetType)
		}

		if sourceKey != "" && targetKey != "" {
			g.AddEdge(sourceKey, targetKey, rel.Relation)
		} else {
			logger.Debug("unresolved relation endpoint",
				"source", rel.Source,
				"target", rel.Target,
				"relation", rel.Relation,
			)
		}
	}
}

// resolveEndpoint scans all nodes for an entity_text or entity_value equal
// to the endpoint (case-sensitive). The last match in insertion order wins.
func resolveEndpoint(g *Graph, endpoint string) string {
	match := ""
	for _, key := range g.Keys() {
		attrs := g.Node(key)
		if attrs.EntityText == endpoint || attrs.EntityValue == endpoint {
			match = key
		}
	}
	return match
}

func inferTypeFromRelation(relation string) string {
	switch {
	case strings.Contains(relation, "amount"):
		return common.TypeMoney
	case strings.Contains(relation, "date"), strings.Contains(relation, "on"):
		return common.TypeDate
	default:
		return common.TypeValue
	}
}

// applyHubFallback synthesizes a star topology when a record produced
// entities but no relations: the first ID or ORG entity with a node in the
// graph becomes the hub and every other entity of the record is connected
// to it. Without an ID/ORG entity the record's entities stay disconnected.
func applyHubFallback(g *Graph, entities []common.Entity) {
	hubKey := ""
	for _, entity := range entities {
		if entity.Type != common.TypeID && entity.Type != common.TypeOrg {
			continue
		}
		hubKey = common.NodeKey(entity.Text, entity.Type)
		if g.HasNode(hubKey) {
			break
		}
	}
	if hubKey == "" || !g.HasNode(hubKey) {
		return
	}

	for _, entity := range entities {
		key := common.NodeKey(entity.Text, entity.Type)
		if key != hubKey && g.HasNode(key) {
			g.AddEdge(hubKey, key, "related_to")
		}
	}
}

// NormalizeMoney strips currency symbols and thousands separators and
// renders the amount as a plain decimal string, so "$5,000.00" and
// "5000.00" store the same value. Unparseable input is returned unchanged.
func NormalizeMoney(value string) string {
	cleaned := strings.ReplaceAll(value, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.TrimSpace(cleaned)
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return value
	}
	return strconv.FormatFloat(parsed, 'f', -1, 64)
}

// Nodes returns a snapshot of the user's node attributes in insertion
// order, or nil when the user has no graph. The structured query engine
// scans this snapshot instead of holding the graph lock during matching.
func (b *Builder) Nodes(ctx context.Context, userID string) []common.NodeAttrs {
	unlock := b.locks.RLock(userID)
	defer unlock()

	g := b.getOrLoad(ctx, userID)
	if g == nil || g.NodeCount() == 0 {
		return nil
	}

	out := make([]common.NodeAttrs, 0, g.NodeCount())
	for _, key := range g.Keys() {
		out = append(out, *g.Node(key))
	}
	return out
}

func (b *Builder) getGraph(userID string) *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graphs[userID]
}

func (b *Builder) setGraph(userID string, g *Graph) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[userID] = g
}

func (b *Builder) dropGraph(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.graphs, userID)
}

// getOrLoad returns the in-memory graph for userID, loading it from durable
// storage on first touch. A user with no stored graph yields nil: absence,
// not an empty graph.
func (b *Builder) getOrLoad(ctx context.Context, userID string) *Graph {
	if g := b.getGraph(userID); g != nil {
		return g
	}

	blob, err := b.store.LoadGraph(ctx, userID)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Warn("failed to load graph", "user_id", userID, "error", err)
		}
		return nil
	}

	g := NewGraph()
	if err := json.Unmarshal(blob, g); err != nil {
		logger.Error("corrupt graph blob", "user_id", userID, "error", err)
		return nil
	}
	b.setGraph(userID, g)
	return g
}

// persist writes the graph blob to durable storage and then replicates to
// the mirror. Mirror failures are logged and swallowed; the local blob is
// the authoritative recovery source.
func (b *Builder) persist(ctx context.Context, userID string, g *Graph) error {
	blob, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if err := b.store.SaveGraph(ctx, userID, blob); err != nil {
		return fmt.Errorf("persist graph: %w", err)
	}

	b.replicate(ctx, userID, g)
	return nil
}

func (b *Builder) replicate(ctx context.Context, userID string, g *Graph) {
	if b.mirror == nil {
		return
	}

	nodes := make([]store.MirrorNode, 0, g.NodeCount())
	for _, key := range g.Keys() {
		attrs := g.Node(key)
		nodes = append(nodes, store.MirrorNode{
			NodeID:      key,
			EntityText:  attrs.EntityText,
			EntityType:  attrs.EntityType,
			EntityValue: attrs.EntityValue,
			FileID:      attrs.FileID,
			DocType:     attrs.DocType,
			Metadata:    attrs.Metadata,
		})
	}

	var edges []store.MirrorEdge
	seen := make(map[string]struct{})
	for _, key := range g.Keys() {
		for _, neighbor := range g.Neighbors(key) {
			pair := key + "\x00" + neighbor
			if neighbor < key {
				pair = neighbor + "\x00" + key
			}
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}
			relation, _ := g.Relation(key, neighbor)
			edges = append(edges, store.MirrorEdge{
				SourceNode: key,
				TargetNode: neighbor,
				Relation:   relation,
			})
		}
	}

	err := util.RetryErrWithContext(ctx, mirrorRetries, func(ctx context.Context) error {
		return b.mirror.UpsertGraph(ctx, userID, nodes, edges)
	})
	if err != nil {
		logger.Warn("mirror graph upsert failed", "user_id", userID, "error", err)
	}
}

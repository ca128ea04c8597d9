package graph

import (
	"context"
	"strings"

	"docrag/internal/util"
	"docrag/pkg/common"
	"docrag/pkg/logger"
	"docrag/pkg/store"
)

// maxQueryNodes caps the subgraph returned by Query. Edges between nodes
// past the cap are dropped along with the nodes.
const maxQueryNodes = 50

// Query extracts entities from the query text and returns the matching
// subgraph. With no extractable entities it falls back to a general
// overview: the first nodes in insertion order plus the edges among them.
// A user with no graph gets an empty result.
func (b *Builder) Query(ctx context.Context, query string, userID string) common.GraphResult {
	result := common.GraphResult{
		Nodes: []common.GraphNode{},
		Edges: []common.GraphEdge{},
	}

	unlock := b.locks.RLock(userID)
	defer unlock()

	g := b.getOrLoad(ctx, userID)
	if g == nil || g.NodeCount() == 0 {
		return result
	}

	extracted := b.chain.Extract(ctx, query, "")

	var selected []string
	if len(extracted.Entities) == 0 {
		selected = g.Keys()
	} else {
		selected = matchAndExpand(g, extracted.Entities)
	}

	if len(selected) > maxQueryNodes {
		selected = selected[:maxQueryNodes]
	}

	index := make(map[string]int, len(selected))
	for i, key := range selected {
		index[key] = i
		attrs := g.Node(key)
		result.Nodes = append(result.Nodes, common.GraphNode{
			EntityText:  attrs.EntityText,
			EntityType:  attrs.EntityType,
			EntityValue: attrs.EntityValue,
		})
	}

	// Induced edges only: both endpoints must have survived the cap.
	for _, key := range selected {
		for _, neighbor := range g.Neighbors(key) {
			j, ok := index[neighbor]
			if !ok || index[key] > j {
				continue
			}
			relation, _ := g.Relation(key, neighbor)
			result.Edges = append(result.Edges, common.GraphEdge{
				Source:   index[key],
				Target:   j,
				Relation: relation,
			})
		}
	}

	logger.Debug("graph query",
		"user_id", userID,
		"query_entities", len(extracted.Entities),
		"nodes", len(result.Nodes),
		"edges", len(result.Edges),
	)

	return result
}

// matchAndExpand selects nodes whose entity_text contains any query entity
// text (case-insensitive substring, either direction), then expands the
// selection by one hop. Order is deterministic: direct matches in insertion
// order, then their neighbors in discovery order.
func matchAndExpand(g *Graph, entities []common.Entity) []string {
	var selected []string
	picked := make(map[string]struct{})

	for _, key := range g.Keys() {
		nodeText := strings.ToLower(g.Node(key).EntityText)
		for _, entity := range entities {
			queryText := strings.ToLower(entity.Text)
			if queryText == "" {
				continue
			}
			if strings.Contains(nodeText, queryText) || strings.Contains(queryText, nodeText) {
				selected = append(selected, key)
				picked[key] = struct{}{}
				break
			}
		}
	}

	for _, key := range selected[:len(selected):len(selected)] {
		for _, neighbor := range g.Neighbors(key) {
			if _, ok := picked[neighbor]; ok {
				continue
			}
			picked[neighbor] = struct{}{}
			selected = append(selected, neighbor)
		}
	}

	return selected
}

// Delete removes all graph state for a user: memory, durable blob, and
// mirror rows. Deleting an absent user is a no-op.
func (b *Builder) Delete(ctx context.Context, userID string) error {
	unlock := b.locks.Lock(userID)
	defer unlock()

	b.dropGraph(userID)

	if err := b.store.DeleteGraph(ctx, userID); err != nil && err != store.ErrNotFound {
		return err
	}

	if b.mirror != nil {
		err := util.RetryErrWithContext(ctx, mirrorRetries, func(ctx context.Context) error {
			return b.mirror.DeleteUser(ctx, userID)
		})
		if err != nil {
			logger.Warn("mirror delete failed", "user_id", userID, "error", err)
		}
	}

	logger.Info("graph deleted", "user_id", userID)
	return nil
}

// DeleteFile removes every node whose file_id attribute matches fileID,
// along with all edges touching those nodes. Because re-ingestion overwrites
// file_id, a shared node is attributed to its most recent file and is
// removed with that file. An emptied graph is deleted outright so the user
// returns to the absent state.
func (b *Builder) DeleteFile(ctx context.Context, userID string, fileID string) (int, error) {
	unlock := b.locks.Lock(userID)
	defer unlock()

	g := b.getOrLoad(ctx, userID)
	if g == nil {
		return 0, nil
	}

	var doomed []string
	for _, key := range g.Keys() {
		if g.Node(key).FileID == fileID {
			doomed = append(doomed, key)
		}
	}
	for _, key := range doomed {
		g.RemoveNode(key)
	}

	if g.NodeCount() == 0 {
		b.dropGraph(userID)
		if err := b.store.DeleteGraph(ctx, userID); err != nil && err != store.ErrNotFound {
			return len(doomed), err
		}
		logger.Info("graph emptied by file delete", "user_id", userID, "file_id", fileID)
		return len(doomed), nil
	}

	if err := b.persist(ctx, userID, g); err != nil {
		return len(doomed), err
	}

	logger.Info("file removed from graph",
		"user_id", userID,
		"file_id", fileID,
		"nodes_removed", len(doomed),
	)
	return len(doomed), nil
}

package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"docrag/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Mirror replicates graph nodes/edges and chunk embeddings into Postgres.
// The schema mirrors the external analytics store the rest of the platform
// reads from; rows are upserted, never read back by this process.
type Mirror struct {
	pool *pgxpool.Pool
}

// NewMirror connects to the mirror database and ensures the replication
// schema exists. pgvector types are registered on every pooled connection.
func NewMirror(ctx context.Context, databaseURL string) (*Mirror, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse mirror config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect mirror: %w", err)
	}

	m := &Mirror{pool: pool}
	if err := m.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the underlying connection pool.
func (m *Mirror) Close() {
	m.pool.Close()
}

func (m *Mirror) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS kg_nodes (
			user_id      text NOT NULL,
			node_id      text NOT NULL,
			entity_text  text,
			entity_type  text,
			entity_value text,
			file_id      text,
			doc_type     text,
			metadata     jsonb,
			PRIMARY KEY (user_id, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS kg_edges (
			user_id     text NOT NULL,
			source_node text NOT NULL,
			target_node text NOT NULL,
			relation    text,
			PRIMARY KEY (user_id, source_node, target_node)
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			user_id   text NOT NULL,
			chunk     text NOT NULL,
			content   text,
			embedding vector,
			PRIMARY KEY (user_id, chunk)
		)`,
	}
	for _, stmt := range statements {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure mirror schema: %w", err)
		}
	}
	return nil
}

// UpsertGraph replicates the full node and edge set for one user.
func (m *Mirror) UpsertGraph(ctx context.Context, userID string, nodes []store.MirrorNode, edges []store.MirrorEdge) error {
	batch := &pgx.Batch{}

	for _, node := range nodes {
		metadata, err := json.Marshal(node.Metadata)
		if err != nil {
			return fmt.Errorf("marshal node metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO kg_nodes (user_id, node_id, entity_text, entity_type, entity_value, file_id, doc_type, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (user_id, node_id) DO UPDATE SET
				entity_text  = EXCLUDED.entity_text,
				entity_type  = EXCLUDED.entity_type,
				entity_value = EXCLUDED.entity_value,
				file_id      = EXCLUDED.file_id,
				doc_type     = EXCLUDED.doc_type,
				metadata     = EXCLUDED.metadata`,
			userID, node.NodeID, node.EntityText, node.EntityType, node.EntityValue,
			node.FileID, node.DocType, metadata,
		)
	}

	for _, edge := range edges {
		batch.Queue(
			`INSERT INTO kg_edges (user_id, source_node, target_node, relation)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, source_node, target_node) DO UPDATE SET
				relation = EXCLUDED.relation`,
			userID, edge.SourceNode, edge.TargetNode, edge.Relation,
		)
	}

	return m.pool.SendBatch(ctx, batch).Close()
}

// UpsertChunks replicates chunk text and embeddings for one user.
func (m *Mirror) UpsertChunks(ctx context.Context, userID string, chunks []store.MirrorChunk) error {
	batch := &pgx.Batch{}

	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO embeddings (user_id, chunk, content, embedding)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, chunk) DO UPDATE SET
				content   = EXCLUDED.content,
				embedding = EXCLUDED.embedding`,
			userID, chunk.Chunk, chunk.Content, pgvector.NewVector(chunk.Embedding),
		)
	}

	return m.pool.SendBatch(ctx, batch).Close()
}

// DeleteUser drops all replicated rows for one user.
func (m *Mirror) DeleteUser(ctx context.Context, userID string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM kg_nodes WHERE user_id = $1`, userID)
	batch.Queue(`DELETE FROM kg_edges WHERE user_id = $1`, userID)
	batch.Queue(`DELETE FROM embeddings WHERE user_id = $1`, userID)
	return m.pool.SendBatch(ctx, batch).Close()
}

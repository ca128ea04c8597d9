package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"docrag/internal/util"
	"docrag/pkg/ai"
	"docrag/pkg/ai/ollama"
	"docrag/pkg/ai/openai"
	"docrag/pkg/common"
	"docrag/pkg/extract"
	"docrag/pkg/graph"
	"docrag/pkg/logger"
	"docrag/pkg/logger/console"
	"docrag/pkg/query"
	"docrag/pkg/rag"
	"docrag/pkg/search"
	"docrag/pkg/store"
	"docrag/pkg/store/local"
	pgxstore "docrag/pkg/store/pgx"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type app struct {
	builder *graph.Builder
	rag     *rag.Engine
	hybrid  *search.Engine
	router  *query.Router
	mirror  *pgxstore.Mirror
}

func main() {
	util.LoadEnv()
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	}))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	a := newApp(ctx)
	defer a.close()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = a.runIngest(ctx, os.Args[2:])
	case "ask":
		err = a.runAsk(ctx, os.Args[2:])
	case "delete":
		err = a.runDelete(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("command failed", "command", os.Args[1], "error", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docrag <ingest|ask|delete> [flags]")
}

func newApp(ctx context.Context) *app {
	completion, embedder, reranker := buildAIClients()

	blobs := local.NewBlobStore(util.GetEnvString("DATA_DIR", "./data"))

	var mirror *pgxstore.Mirror
	var mirrorIface store.Mirror
	if databaseURL := util.GetEnvString("MIRROR_DATABASE_URL", ""); databaseURL != "" {
		m, err := pgxstore.NewMirror(ctx, databaseURL)
		if err != nil {
			logger.Warn("mirror unavailable, continuing without replication", "error", err)
		} else {
			mirror = m
			mirrorIface = m
		}
	}

	chain := extract.NewChain(
		extract.NewLLMStrategy(extract.LLMStrategyParams{Client: completion}),
		extract.NewPatternStrategy(),
		extract.NewNLPStrategy(),
	)

	builder := graph.NewBuilder(graph.NewBuilderParams{
		Chain:  chain,
		Store:  blobs,
		Mirror: mirrorIface,
	})

	ragEngine := rag.NewEngine(rag.NewEngineParams{
		Embedder: embedder,
		Reranker: reranker,
		Store:    blobs,
		Mirror:   mirrorIface,
	})

	hybrid := search.NewEngine(search.NewEngineParams{
		RAG:   ragEngine,
		Graph: builder,
		Weights: search.Weights{
			BM25:   envWeight("SEARCH_WEIGHT_BM25", search.DefaultWeights.BM25),
			Vector: envWeight("SEARCH_WEIGHT_VECTOR", search.DefaultWeights.Vector),
			KG:     envWeight("SEARCH_WEIGHT_KG", search.DefaultWeights.KG),
		},
	})

	router := query.NewRouter(query.NewRouterParams{
		Analyzer:   query.NewAnalyzer(completion),
		Structured: query.NewStructuredEngine(builder),
		Hybrid:     hybrid,
		Graph:      builder,
	})

	return &app{
		builder: builder,
		rag:     ragEngine,
		hybrid:  hybrid,
		router:  router,
		mirror:  mirror,
	}
}

// buildAIClients constructs the model capabilities from the environment.
// AI_PROVIDER selects the backend; every capability may come back nil and
// the pipeline degrades accordingly.
func buildAIClients() (ai.CompletionClient, ai.EmbeddingClient, ai.Reranker) {
	provider := util.GetEnvString("AI_PROVIDER", "openai")
	embeddingDim := int(util.GetEnvNumeric("AI_EMBED_DIM", 0))

	switch provider {
	case "ollama":
		client, err := ollama.NewClient(ollama.NewClientParams{
			ChatModel:      util.GetEnvString("LLM_MODEL", "llama3.1"),
			EmbeddingModel: util.GetEnvString("EMBED_MODEL", "nomic-embed-text"),
			BaseURL:        util.GetEnvString("OLLAMA_BASE_URL", ""),
			APIKey:         util.GetEnvString("OLLAMA_API_KEY", ""),
			EmbeddingDim:   embeddingDim,
		})
		if err != nil {
			logger.Warn("ollama client unavailable", "error", err)
			return nil, nil, nil
		}
		return client, client, nil
	default:
		apiKey := util.GetEnvString("OPENROUTER_API_KEY", "")
		if apiKey == "" {
			logger.Warn("no API key configured, model capabilities disabled")
			return nil, nil, nil
		}
		client := openai.NewClient(openai.NewClientParams{
			ChatModel:      util.GetEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			EmbeddingModel: util.GetEnvString("EMBED_MODEL", "text-embedding-3-small"),
			ChatURL:        util.GetEnvString("OPENROUTER_BASE_URL", ""),
			ChatKey:        apiKey,
			EmbeddingURL:   util.GetEnvString("EMBEDDING_BASE_URL", ""),
			EmbeddingKey:   util.GetEnvString("EMBEDDING_API_KEY", apiKey),
			EmbeddingDim:   embeddingDim,
		})
		var reranker ai.Reranker
		if util.GetEnvBool("RERANK_ENABLED", true) {
			reranker = client
		}
		return client, client, reranker
	}
}

// envWeight reads a fusion weight override from the environment.
func envWeight(key string, def float64) float64 {
	raw := util.GetEnvString(key, "")
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("invalid weight override, using default", "key", key, "value", raw)
		return def
	}
	return parsed
}

func (a *app) close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
}

// runIngest reads JSON-lines records from a file and feeds them to both the
// graph builder and the embedding index.
func (a *app) runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	path := fs.String("file", "", "path to a JSON-lines records file")
	userID := fs.String("user", "", "user id owning the ingested data")
	fileID := fs.String("id", "", "file id tag (generated when empty)")
	docType := fs.String("type", "", "doc type hint for extraction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *userID == "" {
		return fmt.Errorf("ingest requires -file and -user")
	}

	if *fileID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("generate file id: %w", err)
		}
		*fileID = id
	}

	records, err := readRecords(*path)
	if err != nil {
		return err
	}

	buildResult, err := a.builder.Build(ctx, records, *fileID, *userID, *docType)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	ingestErrors := []string{}
	chunks, err := a.rag.Store(ctx, records, *fileID, *userID)
	if err != nil {
		logger.Warn("embedding index update failed, graph still updated", "error", err)
		ingestErrors = append(ingestErrors, fmt.Sprintf("embedding index: %v", err))
	}
	a.hybrid.Invalidate(*userID)

	return printJSON(map[string]any{
		"file_id":         *fileID,
		"nodes_added":     buildResult.NodesAdded,
		"doc_type":        buildResult.DocType,
		"skipped_records": buildResult.SkippedRecords,
		"chunks_indexed":  chunks,
		"errors":          ingestErrors,
	})
}

func (a *app) runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	userID := fs.String("user", "", "user id to query")
	queryText := fs.String("q", "", "query text")
	topK := fs.Int("k", 5, "number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *queryText == "" {
		return fmt.Errorf("ask requires -user and -q")
	}

	response := a.router.Ask(ctx, *queryText, *topK, *userID)
	return printJSON(response)
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	userID := fs.String("user", "", "user id to delete")
	fileID := fs.String("id", "", "delete only this file id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("delete requires -user")
	}

	if *fileID != "" {
		nodesRemoved, err := a.builder.DeleteFile(ctx, *userID, *fileID)
		if err != nil {
			return err
		}
		chunksRemoved, err := a.rag.DeleteFile(ctx, *userID, *fileID)
		if err != nil {
			return err
		}
		a.hybrid.Invalidate(*userID)
		return printJSON(map[string]any{
			"nodes_removed":  nodesRemoved,
			"chunks_removed": chunksRemoved,
		})
	}

	if err := a.builder.Delete(ctx, *userID); err != nil {
		return err
	}
	if err := a.rag.DeleteUser(ctx, *userID); err != nil {
		return err
	}
	a.hybrid.Invalidate(*userID)
	return printJSON(map[string]any{"deleted": *userID})
}

// readRecords parses a JSON-lines file into records. A line that fails to
// parse aborts the ingest with the line number so the bad record can be
// found.
func readRecords(path string) ([]common.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []common.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var record common.Record
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("parse record at line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

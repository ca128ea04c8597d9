package common

import "strings"

// Entity type tags used throughout the graph. Extractors may emit additional
// tags; these are the ones the core classifies into.
const (
	TypeOrg     = "ORG"
	TypePerson  = "PERSON"
	TypeMoney   = "MONEY"
	TypeProduct = "PRODUCT"
	TypeGPE     = "GPE"
	TypeDate    = "DATE"
	TypeID      = "ID"
	TypeStatus  = "STATUS"
	TypeValue   = "VALUE"
)

// Record is a parsed document record as delivered by the upstream parsing
// layer. The "content" field is always present (possibly empty); every other
// field passes through as metadata.
type Record map[string]any

// Content returns the record's text content as a string.
func (r Record) Content() string {
	if r == nil {
		return ""
	}
	v, ok := r["content"]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Entity is a typed mention extracted from text. Value holds the normalized
// form; for MONEY it is a decimal string with currency symbols and thousands
// separators stripped.
type Entity struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Relation is a directed, labeled edge candidate between two entity mentions,
// addressed by entity text or normalized value.
type Relation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// NodeAttrs is the attribute set carried by a graph node. Re-ingestion
// overwrites the whole set, so FileID and DocType reflect the most recent
// ingestion that touched the node.
type NodeAttrs struct {
	EntityText  string `json:"entity_text"`
	EntityType  string `json:"entity_type"`
	EntityValue string `json:"entity_value"`
	FileID      string `json:"file_id"`
	DocType     string `json:"doc_type"`
	Metadata    Record `json:"metadata"`
}

// NodeKey builds the deterministic identity key for a (text, type) pair.
// Two documents producing the same pair collapse to the same node.
func NodeKey(entityText, entityType string) string {
	return entityText + "_" + entityType
}

// GraphNode is the externally visible node shape returned by graph queries.
type GraphNode struct {
	EntityText  string `json:"entity_text"`
	EntityType  string `json:"entity_type"`
	EntityValue string `json:"entity_value"`
}

// GraphEdge references its endpoints by positional index into the nodes
// slice of the enclosing GraphResult, not by graph-global identifier.
type GraphEdge struct {
	Source   int    `json:"source"`
	Target   int    `json:"target"`
	Relation string `json:"relation"`
}

// GraphResult is the result of a graph query. Both slices are non-nil.
type GraphResult struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Chunk is a contiguous span of a record's content plus a copy of the
// originating record's fields.
type Chunk struct {
	Text     string `json:"chunk"`
	Metadata Record `json:"metadata"`
}

// FileID returns the provenance tag stored in the chunk metadata.
func (c Chunk) FileID() string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata["file_id"].(string)
	return s
}

// Retrieval source tags for hybrid search results.
const (
	SourceBM25   = "bm25"
	SourceVector = "vector"
	SourceKG     = "kg"
)

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Source   string  `json:"source"`
	Metadata Record  `json:"metadata"`
}

// IsTrivialContent reports whether a record's content should be skipped
// during ingestion. Spreadsheet parsers hand through "nan"/"None" cells for
// empty rows.
func IsTrivialContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	switch trimmed {
	case "", "nan", "None", "Nothing":
		return true
	}
	return false
}

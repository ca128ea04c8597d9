package ai

// ExtractSystemPrompt pins the extraction model to JSON-only output.
const ExtractSystemPrompt = "You are an expert at extracting structured information from documents. Return ONLY valid JSON, no explanations."

// ExtractPrompt asks the model for a knowledge graph over a document.
// Format args: doc type hint, document text.
const ExtractPrompt = `You are a Knowledge Graph expert. Analyze this %s document and extract a complete knowledge graph.

Document:
%s

Your task:
1. Identify ALL entities (IDs, names, organizations, amounts, dates, statuses, etc.)
2. Understand the document structure and how entities relate to each other
3. Create meaningful relationships that capture the business logic

For a deal/transaction document:
- Deal ID is the central entity
- Connect Deal ID to: client (has_client), amount (has_amount), status (has_status), date (closed_on), product/service name (has_name)
- Think about what information belongs to what

Return ONLY valid JSON:
{
  "doc_type": "deals|invoice|contract|etc",
  "entities": [
    {"text": "101", "type": "ID", "value": "101"},
    {"text": "Alpha Co", "type": "ORG", "value": "Alpha Co"},
    {"text": "5000", "type": "MONEY", "value": "5000.00"}
  ],
  "relations": [
    {"source": "101", "target": "Alpha Co", "relation": "has_client"},
    {"source": "101", "target": "5000", "relation": "has_amount"},
    {"source": "101", "target": "Closed", "relation": "has_status"}
  ]
}

IMPORTANT: Create relations that show HOW entities connect, not just that they exist together.`

// AnalyzeSystemPrompt pins the query-analysis model to JSON-only output.
const AnalyzeSystemPrompt = "You are a query analysis expert. Return valid JSON only."

// AnalyzePrompt classifies a user query and extracts its target entity types
// and time filter. Format args: query text.
const AnalyzePrompt = `Analyze this query and determine its type and intent.

Query: "%s"

Classify as:
1. "count" - counting queries (how many, total number, count)
2. "filter" - filtering queries (yesterday, last week, specific dates)
3. "list" - listing queries (show all, list, display)
4. "search" - simple search queries

Also extract:
- entities (deals, invoices, orders, etc.)
- time_filter (yesterday, last month, etc.)
- aggregation_type (count, sum, average, etc.)

Return JSON:
{
  "type": "count|filter|list|search",
  "intent": "what user wants",
  "entities": ["entity1", "entity2"],
  "time_filter": "time period or null",
  "aggregation": "count|sum|avg|null"
}`

// RerankSystemPrompt pins the reranking model to JSON-only output.
const RerankSystemPrompt = "You are a relevance judge. Return valid JSON only."

// RerankPrompt scores passages against a query. Format args: query text,
// numbered passage list.
const RerankPrompt = `Score how relevant each passage is to the query on a 0-10 scale.

Query: "%s"

Passages:
%s

Return JSON with one score per passage, in the same order:
{"scores": [7.5, 2.0, 9.1]}`

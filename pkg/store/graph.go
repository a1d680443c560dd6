package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/internal/types"
)

type GraphStoreConfig struct {
	URI            string
	Username       string
	Password       string
	Database       string
	VectorDim      int
	VectorIndex    string
	FulltextIndex  string
	PoolSize       int
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

// GraphStore persists Documents and Chunks in a Neo4j property graph and
// serves the two retrieval primitives: vector-similarity reads against the
// chunk embedding index and fulltext reads against the chunk text index.
// All queries go through a bounded session pool.
type GraphStore struct {
	config GraphStoreConfig
	driver neo4j.DriverWithContext
	pool   *Pool
}

func NewWithConfig(ctx context.Context, config GraphStoreConfig) (*GraphStore, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}
	if config.Database == "" {
		config.Database = "neo4j"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384
	}
	if config.VectorIndex == "" {
		config.VectorIndex = "chunk_embeddings"
	}
	if config.FulltextIndex == "" {
		config.FulltextIndex = "chunk_text"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.AcquireTimeout == 0 {
		config.AcquireTimeout = 5 * time.Second
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(config.URI,
		neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %v", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to graph store: %v", err)
	}

	gs := &GraphStore{
		config: config,
		driver: driver,
	}
	gs.pool = NewPool(gs.newSession, PoolConfig{
		MaxSize:        config.PoolSize,
		AcquireTimeout: config.AcquireTimeout,
	})

	if err := gs.initialize(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	return gs, nil
}

func (gs *GraphStore) newSession(ctx context.Context) (Session, error) {
	return driverSession{inner: gs.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: gs.config.Database,
	})}, nil
}

// Pool exposes the session pool for utilization stats.
func (gs *GraphStore) Pool() *Pool {
	return gs.pool
}

func (gs *GraphStore) initialize(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT document_id IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.id IS UNIQUE`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
		 FOR (c:Chunk) ON c.embedding
		 OPTIONS {indexConfig: {
		   `+"`vector.dimensions`"+`: %d,
		   `+"`vector.similarity_function`"+`: 'cosine'
		 }}`, gs.config.VectorIndex, gs.config.VectorDim),
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS
		 FOR (c:Chunk) ON EACH [c.text]`, gs.config.FulltextIndex),
	}

	for _, stmt := range statements {
		if err := gs.exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to initialize schema: %v", err)
		}
	}

	return nil
}

func (gs *GraphStore) exec(ctx context.Context, cypher string, params map[string]any) error {
	session, err := gs.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		gs.pool.Discard(ctx, session)
		return err
	}
	if _, err := result.Consume(ctx); err != nil {
		gs.pool.Discard(ctx, session)
		return err
	}

	gs.pool.Release(session)
	return nil
}

// CreateDocument writes the Document node, all Chunk nodes and their
// HAS_CHUNK edges in one write transaction, then verifies the child count.
// A count mismatch removes the document and reports ErrIngestionFailed so
// no partial document is ever queryable.
func (gs *GraphStore) CreateDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != gs.config.VectorDim {
			return fmt.Errorf("chunk %d has %d dimensions, index expects %d: %w",
				chunk.Index, len(chunk.Embedding), gs.config.VectorDim, types.ErrDimensionMismatch)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, gs.config.QueryTimeout)
	defer cancel()

	chunkParams := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		embedding := make([]float64, len(chunk.Embedding))
		for j, v := range chunk.Embedding {
			embedding[j] = float64(v)
		}
		chunkParams[i] = map[string]any{
			"text":      chunk.Text,
			"embedding": embedding,
			"index":     chunk.Index,
		}
	}

	metadata := doc.Metadata
	if metadata == nil {
		// SET d += null is a Cypher error.
		metadata = map[string]any{}
	}

	session, err := gs.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			CREATE (d:Document {
				id: $id, content: $content, source: $source,
				category: $category, created: $created
			})
			SET d += $metadata
			WITH d
			UNWIND $chunks AS chunk
			CREATE (c:Chunk {
				text: chunk.text, embedding: chunk.embedding,
				chunk_index: chunk.index
			})
			CREATE (d)-[:HAS_CHUNK]->(c)`,
			map[string]any{
				"id":       doc.ID,
				"content":  doc.Content,
				"source":   doc.Source,
				"category": doc.Category,
				"created":  doc.Created.UTC().Format(time.RFC3339),
				"metadata": metadata,
				"chunks":   chunkParams,
			})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		gs.pool.Discard(ctx, session)
		return fmt.Errorf("failed to write document %s: %w", doc.ID, types.ErrIngestionFailed)
	}
	gs.pool.Release(session)

	written, err := gs.countChildren(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to verify document %s: %v", doc.ID, err)
	}
	if written != int64(len(chunks)) {
		_ = gs.DeleteDocument(ctx, doc.ID)
		return fmt.Errorf("document %s has %d of %d chunks: %w",
			doc.ID, written, len(chunks), types.ErrIngestionFailed)
	}

	return nil
}

func (gs *GraphStore) countChildren(ctx context.Context, docID string) (int64, error) {
	return gs.count(ctx, `
		MATCH (d:Document {id: $id})-[:HAS_CHUNK]->(c:Chunk)
		RETURN count(c) AS n`,
		map[string]any{"id": docID})
}

// DeleteDocument removes a document and cascades to its chunks.
func (gs *GraphStore) DeleteDocument(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, gs.config.QueryTimeout)
	defer cancel()

	return gs.exec(ctx, `
		MATCH (d:Document {id: $id})
		OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
		DETACH DELETE d, c`,
		map[string]any{"id": id})
}

// VectorSearch returns the top k chunks by cosine similarity against the
// native vector index. Scores come back in [0, 1] for normalized embeddings.
func (gs *GraphStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if len(embedding) != gs.config.VectorDim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d: %w",
			len(embedding), gs.config.VectorDim, types.ErrDimensionMismatch)
	}

	query := make([]float64, len(embedding))
	for i, v := range embedding {
		query[i] = float64(v)
	}

	return gs.searchChunks(ctx, `
		CALL db.index.vector.queryNodes($index, $k, $embedding)
		YIELD node, score
		MATCH (d:Document)-[:HAS_CHUNK]->(node)
		RETURN node.text AS text, node.chunk_index AS chunk_index,
		       d.id AS document_id, score
		ORDER BY score DESC`,
		map[string]any{
			"index":     gs.config.VectorIndex,
			"k":         k,
			"embedding": query,
		})
}

// KeywordSearch runs a fulltext query over chunk text. Scores are raw Lucene
// relevance values; the search engine normalizes them before fusion.
func (gs *GraphStore) KeywordSearch(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	escaped := escapeLucene(query)
	if escaped == "" {
		return nil, nil
	}

	return gs.searchChunks(ctx, `
		CALL db.index.fulltext.queryNodes($index, $query, {limit: $k})
		YIELD node, score
		MATCH (d:Document)-[:HAS_CHUNK]->(node)
		RETURN node.text AS text, node.chunk_index AS chunk_index,
		       d.id AS document_id, score
		ORDER BY score DESC`,
		map[string]any{
			"index": gs.config.FulltextIndex,
			"query": escaped,
			"k":     k,
		})
}

func (gs *GraphStore) searchChunks(ctx context.Context, cypher string, params map[string]any) ([]models.ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, gs.config.QueryTimeout)
	defer cancel()

	session, err := gs.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		gs.pool.Discard(ctx, session)
		return nil, fmt.Errorf("failed to run search: %v", err)
	}

	var chunks []models.ScoredChunk
	for result.Next(ctx) {
		record := result.Record()
		chunk := models.ScoredChunk{}
		if v, ok := record.Get("text"); ok {
			chunk.Text, _ = v.(string)
		}
		if v, ok := record.Get("chunk_index"); ok {
			if idx, ok := v.(int64); ok {
				chunk.ChunkIndex = int(idx)
			}
		}
		if v, ok := record.Get("document_id"); ok {
			chunk.DocumentID, _ = v.(string)
		}
		if v, ok := record.Get("score"); ok {
			chunk.Score, _ = v.(float64)
		}
		chunks = append(chunks, chunk)
	}
	if err := result.Err(); err != nil {
		gs.pool.Discard(ctx, session)
		return nil, fmt.Errorf("failed to read search results: %v", err)
	}

	gs.pool.Release(session)
	return chunks, nil
}

// CountDocuments returns the number of Document nodes.
func (gs *GraphStore) CountDocuments(ctx context.Context) (int64, error) {
	return gs.count(ctx, `MATCH (d:Document) RETURN count(d) AS n`, nil)
}

// CountChunks returns the number of Chunk nodes.
func (gs *GraphStore) CountChunks(ctx context.Context) (int64, error) {
	return gs.count(ctx, `MATCH (c:Chunk) RETURN count(c) AS n`, nil)
}

func (gs *GraphStore) count(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, gs.config.QueryTimeout)
	defer cancel()

	session, err := gs.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		gs.pool.Discard(ctx, session)
		return 0, fmt.Errorf("failed to run count: %v", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		gs.pool.Discard(ctx, session)
		return 0, fmt.Errorf("failed to read count: %v", err)
	}

	gs.pool.Release(session)

	n, ok := record.Values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", record.Values[0])
	}
	return n, nil
}

// Close drains the pool and closes the underlying driver.
func (gs *GraphStore) Close(ctx context.Context) error {
	gs.pool.Close(ctx)
	return gs.driver.Close(ctx)
}

// escapeLucene neutralizes fulltext query syntax so user questions are
// matched as terms, not operators.
func escapeLucene(query string) string {
	special := `+-&|!(){}[]^"~*?:\/`

	var b strings.Builder
	for _, r := range query {
		if strings.ContainsRune(special, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

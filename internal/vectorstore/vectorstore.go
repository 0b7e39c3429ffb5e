package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"finchat/internal/model"
)

// Embedder converts text to fixed-dimension vectors. Declared here,
// consumer-side; satisfied by ai.EmbeddingGateway.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configure the FAQ vector index.
type Options struct {
	DataDir             string
	IndexName           string
	SimilarityThreshold float64
}

// Stats describes the index contents.
type Stats struct {
	IndexName    string         `json:"index_name"`
	TotalVectors int            `json:"total_vector_count"`
	Dimension    int            `json:"dimension"`
	Namespaces   map[string]int `json:"namespaces"`
}

// metadataKey holds the JSON-encoded scalar metadata of a document.
// chromem metadata values are plain strings, so typed scalars ride in
// one encoded entry; category is mirrored as a plain key to keep
// exact-match filters working.
const metadataKey = "__meta"

// Store wraps a persistent chromem-go database, one collection per
// namespace. Initialization is lazy and race-tolerant: concurrent
// first uses converge on a single database handle.
type Store struct {
	mu        sync.Mutex
	opts      Options
	embedder  Embedder
	logger    *zap.Logger
	db        *chromem.DB
	dimension int
}

func New(opts Options, embedder Embedder, logger *zap.Logger) *Store {
	return &Store{opts: opts, embedder: embedder, logger: logger}
}

// ensureDB opens (or creates) the on-disk database. Callers hold no
// lock; the mutex makes duplicate initialization attempts converge.
func (s *Store) ensureDB() (*chromem.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	dir := filepath.Join(s.opts.DataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir failed: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore failed: %w", err)
	}
	s.db = db
	s.logger.Info("vector index opened",
		zap.String("index", s.opts.IndexName),
		zap.String("dir", dir),
	)
	return s.db, nil
}

func (s *Store) collectionName(namespace string) string {
	if namespace == "" {
		return s.opts.IndexName
	}
	return fmt.Sprintf("%s_%s", s.opts.IndexName, namespace)
}

func (s *Store) collection(namespace string) (*chromem.Collection, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.collectionName(namespace)
	if col := db.GetCollection(name, nil); col != nil {
		return col, nil
	}
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create vector collection %q failed: %w", name, err)
	}
	return col, nil
}

// SearchSimilar embeds the query and returns nearest neighbors at or
// above the similarity threshold, in rank order, at most topK.
// Candidates below the threshold are discarded entirely.
func (s *Store) SearchSimilar(ctx context.Context, query string, topK int, namespace string, filter map[string]string) ([]model.Source, error) {
	col, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}
	if col.Count() == 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	s.rememberDimension(len(vector))

	k := topK
	if count := col.Count(); k > count {
		k = count
	}

	// Count and query race with concurrent deletes, so k can still
	// exceed the candidate set when the query runs. Step k down on
	// that chromem error only; anything else surfaces immediately.
	var results []chromem.Result
	for attempt := k; attempt > 0; attempt-- {
		results, err = col.QueryEmbedding(ctx, vector, attempt, filter, nil)
		if err == nil || !strings.Contains(err.Error(), "number of documents") {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	matched := make([]model.Source, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < s.opts.SimilarityThreshold {
			continue
		}
		matched = append(matched, model.Source{
			ID:       r.ID,
			Score:    score,
			Text:     r.Content,
			Metadata: decodeMetadata(r.Metadata),
		})
	}
	return matched, nil
}

// UpsertDocuments embeds and indexes the documents. Re-adding an
// existing ID replaces its vector and metadata.
func (s *Store) UpsertDocuments(ctx context.Context, docs []model.Document, namespace string) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents failed: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding count mismatch: %d documents, %d vectors", len(docs), len(vectors))
	}

	for i, doc := range docs {
		s.rememberDimension(len(vectors[i]))
		err := col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: vectors[i],
			Metadata:  encodeMetadata(doc.Metadata),
		})
		if err != nil {
			return fmt.Errorf("index document %q failed: %w", doc.ID, err)
		}
	}
	s.logger.Info("documents indexed",
		zap.Int("count", len(docs)),
		zap.String("namespace", namespace),
	)
	return nil
}

// DeleteByIDs removes vectors from a namespace. Unknown IDs are
// ignored.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string, namespace string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete vectors failed: %w", err)
	}
	return nil
}

// DeleteNamespace drops a whole namespace collection.
func (s *Store) DeleteNamespace(namespace string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if err := db.DeleteCollection(s.collectionName(namespace)); err != nil {
		return fmt.Errorf("delete namespace %q failed: %w", namespace, err)
	}
	return nil
}

// Stats reports per-namespace vector counts and the embedding
// dimension observed since startup.
func (s *Store) Stats() (*Stats, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		IndexName:  s.opts.IndexName,
		Namespaces: map[string]int{},
	}
	prefix := s.opts.IndexName
	for name, col := range db.ListCollections() {
		if name != prefix && !isNamespaceOf(name, prefix) {
			continue
		}
		count := col.Count()
		stats.TotalVectors += count
		ns := ""
		if name != prefix {
			ns = name[len(prefix)+1:]
		}
		stats.Namespaces[ns] = count
	}

	s.mu.Lock()
	stats.Dimension = s.dimension
	s.mu.Unlock()
	return stats, nil
}

func (s *Store) rememberDimension(dim int) {
	if dim == 0 {
		return
	}
	s.mu.Lock()
	s.dimension = dim
	s.mu.Unlock()
}

func isNamespaceOf(name, prefix string) bool {
	return len(name) > len(prefix)+1 && name[:len(prefix)+1] == prefix+"_"
}

func encodeMetadata(metadata map[string]any) map[string]string {
	clean := model.ScalarMetadata(metadata)
	encoded, err := json.Marshal(clean)
	if err != nil {
		encoded = []byte("{}")
	}
	out := map[string]string{metadataKey: string(encoded)}
	if category, ok := clean["category"].(string); ok {
		out["category"] = category
	}
	return out
}

// decodeMetadata recovers typed scalar metadata from a stored
// document. Records written without the encoded entry fall back to the
// raw string metadata.
func decodeMetadata(raw map[string]string) map[string]any {
	if encoded, ok := raw[metadataKey]; ok {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(encoded), &decoded); err == nil {
			return decoded
		}
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == metadataKey {
			continue
		}
		out[k] = v
	}
	return out
}

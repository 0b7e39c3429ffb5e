package app

import (
	"context"
	"fmt"
	"strings"

	"finchat/internal/model"
	"finchat/internal/vectorstore"
)

// VectorIndex is the full gateway surface the admin API needs beyond
// plain retrieval.
type VectorIndex interface {
	Retriever
	DeleteByIDs(ctx context.Context, ids []string, namespace string) error
	Stats() (*vectorstore.Stats, error)
}

// DocumentPublisher hands FAQ documents to the ingestion queue; the
// index worker embeds and upserts them asynchronously.
type DocumentPublisher interface {
	Publish(ctx context.Context, docs []model.Document) error
}

// AdminService exposes knowledge-base inspection and ingestion.
type AdminService struct {
	index     VectorIndex
	publisher DocumentPublisher
	namespace string
}

func NewAdminService(index VectorIndex, publisher DocumentPublisher, namespace string) *AdminService {
	return &AdminService{index: index, publisher: publisher, namespace: namespace}
}

func (s *AdminService) IndexStats() (*vectorstore.Stats, error) {
	stats, err := s.index.Stats()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return stats, nil
}

// TestSearch runs a retrieval probe with a custom query, using the
// same threshold rules as the chat pipeline.
func (s *AdminService) TestSearch(ctx context.Context, query string, topK int) ([]model.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	if topK <= 0 {
		topK = 5
	}

	results, err := s.index.SearchSimilar(ctx, query, topK, s.namespace, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return results, nil
}

// IngestDocuments validates and enqueues FAQ articles for indexing.
func (s *AdminService) IngestDocuments(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return ErrInvalidInput
	}
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Text) == "" {
			return ErrInvalidInput
		}
	}
	return s.publisher.Publish(ctx, docs)
}

// DeleteDocuments removes vectors from the index by document id.
func (s *AdminService) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrInvalidInput
	}
	if err := s.index.DeleteByIDs(ctx, ids, s.namespace); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}

package indexer

import (
	"context"

	"github.com/project-tktt/avature-crawler/internal/domain"
)

// Indexer defines the interface for job record indexing backends
type Indexer interface {
	// BulkIndex indexes multiple records at once
	BulkIndex(ctx context.Context, recs []*domain.JobRecord) error
}

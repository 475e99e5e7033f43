package ports

import (
	"context"

	"github.com/marmos91/filestore/pkg/domain"
)

// ProgressStore holds ephemeral, TTL-bounded ProgressRecords keyed by
// syncEventId (or sessionId for multipart uploads), so clients can poll
// sync/upload progress without hitting the metadata store.
type ProgressStore interface {
	Set(ctx context.Context, key string, record domain.ProgressRecord) error
	Get(ctx context.Context, key string) (*domain.ProgressRecord, error)
	Update(ctx context.Context, key string, fn func(r *domain.ProgressRecord)) error
	Delete(ctx context.Context, key string) error
}

// Package redisprogress implements ports.ProgressStore on Redis,
// storing each ProgressRecord as a JSON value with a TTL so stale
// entries self-expire — spec §3's "ephemeral KV, TTL ~1h" port.
package redisprogress

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func recordKey(key string) string {
	return "filestore:progress:" + key
}

func (s *Store) Set(ctx context.Context, key string, record domain.ProgressRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, recordKey(key), payload, domain.ProgressTTL).Err()
}

func (s *Store) Get(ctx context.Context, key string) (*domain.ProgressRecord, error) {
	raw, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record domain.ProgressRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update loads the current record, applies fn, and writes it back with
// a refreshed TTL. It's not transactional against concurrent updates
// to the same key — acceptable here because, per spec §5, only the
// single sync handler holding "file-sync:<fileId>" ever writes a given
// syncEventId's progress.
func (s *Store) Update(ctx context.Context, key string, fn func(r *domain.ProgressRecord)) error {
	record, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return apperr.New(apperr.ErrSessionNotFound, "no progress record for "+key)
	}

	fn(record)
	return s.Set(ctx, key, *record)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, recordKey(key)).Err()
}

var _ ports.ProgressStore = (*Store)(nil)

package orphancleaner

import (
	"context"
	"io"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// fakeMetadataStore is a minimal in-memory ports.MetadataStore
// exercising only the methods the orphan cleaner calls, in the same
// hand-written-fake convention as pkg/upload, pkg/syncworker and
// pkg/cacherestore.
type fakeMetadataStore struct {
	sessions map[string]*domain.UploadSession
	parts    map[string][]domain.UploadPart
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		sessions: make(map[string]*domain.UploadSession),
		parts:    make(map[string][]domain.UploadPart),
	}
}

func (f *fakeMetadataStore) Begin(ctx context.Context) (ports.Transaction, ports.MetadataStore, error) {
	return nil, nil, nil
}
func (f *fakeMetadataStore) GetFile(ctx context.Context, fileID string) (*domain.File, error) {
	return nil, apperr.NotFound(fileID)
}
func (f *fakeMetadataStore) GetFileByPath(ctx context.Context, folderID, name string) (*domain.File, error) {
	return nil, apperr.New(apperr.ErrFileNotFound, "not implemented")
}
func (f *fakeMetadataStore) CreateFile(ctx context.Context, file *domain.File) error { return nil }
func (f *fakeMetadataStore) UpdateFile(ctx context.Context, file *domain.File) error { return nil }
func (f *fakeMetadataStore) DeleteFile(ctx context.Context, fileID string) error     { return nil }
func (f *fakeMetadataStore) FolderExists(ctx context.Context, folderID string) (bool, error) {
	return true, nil
}

func (f *fakeMetadataStore) GetStorageObject(ctx context.Context, fileID string, tier domain.Tier) (*domain.StorageObject, error) {
	return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "not found", fileID)
}
func (f *fakeMetadataStore) UpsertStorageObject(ctx context.Context, obj *domain.StorageObject) error {
	return nil
}
func (f *fakeMetadataStore) DeleteStorageObject(ctx context.Context, fileID string, tier domain.Tier) error {
	return nil
}

func (f *fakeMetadataStore) AcquireStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	return nil
}
func (f *fakeMetadataStore) ReleaseStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	return nil
}

func (f *fakeMetadataStore) GetUploadSession(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperr.SessionNotFound(sessionID)
	}
	cp := *sess
	return &cp, nil
}
func (f *fakeMetadataStore) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}
func (f *fakeMetadataStore) UpdateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}
func (f *fakeMetadataStore) RecordUploadPart(ctx context.Context, part *domain.UploadPart) error {
	f.parts[part.SessionID] = append(f.parts[part.SessionID], *part)
	return nil
}
func (f *fakeMetadataStore) ListUploadParts(ctx context.Context, sessionID string) ([]domain.UploadPart, error) {
	return f.parts[sessionID], nil
}
func (f *fakeMetadataStore) ListExpiredSessions(ctx context.Context, olderThan int64, limit int) ([]domain.UploadSession, error) {
	var out []domain.UploadSession
	for _, s := range f.sessions {
		if (s.Status == domain.SessionActive || s.Status == domain.SessionCompleting) && s.UpdatedAt.Unix() < olderThan {
			out = append(out, *s)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (f *fakeMetadataStore) ListSessionsByStatus(ctx context.Context, statuses []domain.SessionStatus, olderThan int64, limit int) ([]domain.UploadSession, error) {
	want := make(map[domain.SessionStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.UploadSession
	for _, s := range f.sessions {
		if want[s.Status] && s.UpdatedAt.Unix() < olderThan {
			out = append(out, *s)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (f *fakeMetadataStore) DeleteUploadSession(ctx context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}
func (f *fakeMetadataStore) DeleteUploadParts(ctx context.Context, sessionID string) error {
	delete(f.parts, sessionID)
	return nil
}
func (f *fakeMetadataStore) GetCompletingSessionByFileID(ctx context.Context, fileID string) (*domain.UploadSession, error) {
	return nil, nil
}
func (f *fakeMetadataStore) CreateSyncEvent(ctx context.Context, event *domain.SyncEvent) error {
	return nil
}
func (f *fakeMetadataStore) UpdateSyncEvent(ctx context.Context, event *domain.SyncEvent) error {
	return nil
}
func (f *fakeMetadataStore) GetSyncEvent(ctx context.Context, eventID string) (*domain.SyncEvent, error) {
	return nil, apperr.New(apperr.ErrFileNotFound, "not implemented")
}
func (f *fakeMetadataStore) GetLatestSyncEvent(ctx context.Context, fileID string) (*domain.SyncEvent, error) {
	return nil, apperr.New(apperr.ErrFileNotFound, "not implemented")
}
func (f *fakeMetadataStore) Close() error { return nil }

// fakeCacheStore is a minimal in-memory ports.CacheStore backing only
// the part blobs CleanupParts deletes.
type fakeCacheStore struct {
	blobs map[string][]byte
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{blobs: make(map[string][]byte)}
}

func (c *fakeCacheStore) Write(ctx context.Context, key string, data []byte) error {
	c.blobs[key] = data
	return nil
}
func (c *fakeCacheStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, ok := c.blobs[key]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	return data, nil
}
func (c *fakeCacheStore) StreamRead(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not implemented")
}
func (c *fakeCacheStore) RangeStreamRead(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not implemented")
}
func (c *fakeCacheStore) StreamWrite(ctx context.Context, key string, r io.Reader) (int64, error) {
	return 0, nil
}
func (c *fakeCacheStore) Delete(ctx context.Context, key string) error {
	delete(c.blobs, key)
	return nil
}
func (c *fakeCacheStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.blobs[key]
	return ok, nil
}
func (c *fakeCacheStore) Move(ctx context.Context, srcKey, dstKey string) error {
	data, ok := c.blobs[srcKey]
	if !ok {
		return apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	delete(c.blobs, srcKey)
	c.blobs[dstKey] = data
	return nil
}
func (c *fakeCacheStore) Size(ctx context.Context, key string) (int64, error) {
	data, ok := c.blobs[key]
	if !ok {
		return 0, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	return int64(len(data)), nil
}
func (c *fakeCacheStore) Rmdir(ctx context.Context, prefix string) error { return nil }

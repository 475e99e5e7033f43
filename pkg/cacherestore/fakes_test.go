package cacherestore

import (
	"context"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// fakeMetadataStore is a minimal in-memory ports.MetadataStore
// exercising only the methods the cache restore worker calls, in the
// same hand-written-fake convention as pkg/upload and pkg/syncworker.
type fakeMetadataStore struct {
	storageObjects map[string]*domain.StorageObject
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{storageObjects: make(map[string]*domain.StorageObject)}
}

func soKey(fileID string, tier domain.Tier) string {
	return fileID + ":" + string(tier)
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
	obj, ok := f.storageObjects[soKey(fileID, tier)]
	if !ok {
		return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "storage object not found", fileID)
	}
	cp := *obj
	return &cp, nil
}

func (f *fakeMetadataStore) UpsertStorageObject(ctx context.Context, obj *domain.StorageObject) error {
	cp := *obj
	f.storageObjects[soKey(obj.FileID, obj.Tier)] = &cp
	return nil
}

func (f *fakeMetadataStore) DeleteStorageObject(ctx context.Context, fileID string, tier domain.Tier) error {
	delete(f.storageObjects, soKey(fileID, tier))
	return nil
}

func (f *fakeMetadataStore) AcquireStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	obj, ok := f.storageObjects[soKey(fileID, tier)]
	if !ok {
		return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "storage object not found", fileID)
	}
	obj.LeaseCount++
	return nil
}

func (f *fakeMetadataStore) ReleaseStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	if obj, ok := f.storageObjects[soKey(fileID, tier)]; ok && obj.LeaseCount > 0 {
		obj.LeaseCount--
	}
	return nil
}

func (f *fakeMetadataStore) GetUploadSession(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	return nil, apperr.SessionNotFound(sessionID)
}
func (f *fakeMetadataStore) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	return nil
}
func (f *fakeMetadataStore) UpdateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	return nil
}
func (f *fakeMetadataStore) RecordUploadPart(ctx context.Context, part *domain.UploadPart) error {
	return nil
}
func (f *fakeMetadataStore) ListUploadParts(ctx context.Context, sessionID string) ([]domain.UploadPart, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ListExpiredSessions(ctx context.Context, olderThan int64, limit int) ([]domain.UploadSession, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ListSessionsByStatus(ctx context.Context, statuses []domain.SessionStatus, olderThan int64, limit int) ([]domain.UploadSession, error) {
	return nil, nil
}
func (f *fakeMetadataStore) DeleteUploadSession(ctx context.Context, sessionID string) error {
	return nil
}
func (f *fakeMetadataStore) DeleteUploadParts(ctx context.Context, sessionID string) error {
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

// fakeLock is a passthrough DistributedLock.
type fakeLock struct{}

func (fakeLock) WithLock(ctx context.Context, key string, opts ports.LockOptions, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeJobQueue records every Add call.
type fakeJobQueue struct {
	added []ports.Job
}

func (q *fakeJobQueue) Add(ctx context.Context, name string, data []byte, opts ports.JobOptions) (ports.Job, error) {
	job := ports.Job{ID: opts.JobID, Name: name, Data: data}
	q.added = append(q.added, job)
	return job, nil
}
func (q *fakeJobQueue) Process(ctx context.Context, name string, handler ports.JobHandler, opts ports.ProcessOptions) error {
	return nil
}
func (q *fakeJobQueue) Status(ctx context.Context, name, jobID string) (ports.JobStatus, error) {
	return ports.JobWaiting, nil
}
func (q *fakeJobQueue) Close() error { return nil }

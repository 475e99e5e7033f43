package syncworker

import (
	"context"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// fakeTransaction is a no-op Transaction, mirroring pkg/upload's fake:
// fakeMetadataStore mutates its maps directly regardless of
// commit/rollback.
type fakeTransaction struct{}

func (fakeTransaction) Commit(ctx context.Context) error   { return nil }
func (fakeTransaction) Rollback(ctx context.Context) error { return nil }

// fakeMetadataStore is an in-memory ports.MetadataStore, the same
// shape as pkg/upload's fake, reused here for the sync worker's own
// tests.
type fakeMetadataStore struct {
	files          map[string]*domain.File
	storageObjects map[string]*domain.StorageObject
	sessions       map[string]*domain.UploadSession
	parts          map[string][]domain.UploadPart
	syncEvents     map[string]*domain.SyncEvent
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		files:          make(map[string]*domain.File),
		storageObjects: make(map[string]*domain.StorageObject),
		sessions:       make(map[string]*domain.UploadSession),
		parts:          make(map[string][]domain.UploadPart),
		syncEvents:     make(map[string]*domain.SyncEvent),
	}
}

func (f *fakeMetadataStore) Begin(ctx context.Context) (ports.Transaction, ports.MetadataStore, error) {
	return fakeTransaction{}, f, nil
}

func (f *fakeMetadataStore) GetFile(ctx context.Context, fileID string) (*domain.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, apperr.NotFound(fileID)
	}
	cp := *file
	return &cp, nil
}

func (f *fakeMetadataStore) GetFileByPath(ctx context.Context, folderID, name string) (*domain.File, error) {
	for _, file := range f.files {
		if file.FolderID == folderID && file.Name == name && file.State == domain.FileActive {
			return file, nil
		}
	}
	return nil, apperr.New(apperr.ErrFileNotFound, "file not found: "+folderID+"/"+name)
}

func (f *fakeMetadataStore) CreateFile(ctx context.Context, file *domain.File) error {
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) UpdateFile(ctx context.Context, file *domain.File) error {
	if _, ok := f.files[file.ID]; !ok {
		return apperr.NotFound(file.ID)
	}
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	delete(f.files, fileID)
	return nil
}

func (f *fakeMetadataStore) FolderExists(ctx context.Context, folderID string) (bool, error) {
	if folderID == domain.RootFolderID {
		return true, nil
	}
	for _, file := range f.files {
		if file.FolderID == folderID && file.State == domain.FileActive {
			return true, nil
		}
	}
	return false, nil
}

func soKey(fileID string, tier domain.Tier) string {
	return fileID + ":" + string(tier)
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
	key := soKey(fileID, tier)
	if _, ok := f.storageObjects[key]; !ok {
		return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "storage object not found", fileID)
	}
	delete(f.storageObjects, key)
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
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperr.SessionNotFound(sessionID)
	}
	cp := *sess
	cp.CompletedParts = make(map[int]bool, len(sess.CompletedParts))
	for k, v := range sess.CompletedParts {
		cp.CompletedParts[k] = v
	}
	return &cp, nil
}

func (f *fakeMetadataStore) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) UpdateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	if _, ok := f.sessions[sess.ID]; !ok {
		return apperr.SessionNotFound(sess.ID)
	}
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) RecordUploadPart(ctx context.Context, part *domain.UploadPart) error {
	existing := f.parts[part.SessionID]
	for i, p := range existing {
		if p.PartNumber == part.PartNumber {
			existing[i] = *part
			f.parts[part.SessionID] = existing
			return nil
		}
	}
	f.parts[part.SessionID] = append(existing, *part)
	return nil
}

func (f *fakeMetadataStore) ListUploadParts(ctx context.Context, sessionID string) ([]domain.UploadPart, error) {
	return append([]domain.UploadPart(nil), f.parts[sessionID]...), nil
}

func (f *fakeMetadataStore) ListExpiredSessions(ctx context.Context, olderThan int64, limit int) ([]domain.UploadSession, error) {
	return nil, nil
}

func (f *fakeMetadataStore) ListSessionsByStatus(ctx context.Context, statuses []domain.SessionStatus, olderThan int64, limit int) ([]domain.UploadSession, error) {
	return nil, nil
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
	for _, sess := range f.sessions {
		if sess.FileID == fileID && sess.Status == domain.SessionCompleting {
			return sess, nil
		}
	}
	return nil, nil
}

func (f *fakeMetadataStore) CreateSyncEvent(ctx context.Context, event *domain.SyncEvent) error {
	cp := *event
	f.syncEvents[event.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) UpdateSyncEvent(ctx context.Context, event *domain.SyncEvent) error {
	cp := *event
	f.syncEvents[event.ID] = &cp
	return nil
}

func (f *fakeMetadataStore) GetSyncEvent(ctx context.Context, eventID string) (*domain.SyncEvent, error) {
	event, ok := f.syncEvents[eventID]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFound, "sync event not found: "+eventID)
	}
	cp := *event
	return &cp, nil
}

func (f *fakeMetadataStore) GetLatestSyncEvent(ctx context.Context, fileID string) (*domain.SyncEvent, error) {
	var latest *domain.SyncEvent
	for _, event := range f.syncEvents {
		if event.FileID != fileID {
			continue
		}
		if latest == nil || event.CreatedAt.After(latest.CreatedAt) {
			latest = event
		}
	}
	if latest == nil {
		return nil, apperr.New(apperr.ErrFileNotFound, "no sync event for file: "+fileID)
	}
	return latest, nil
}

func (f *fakeMetadataStore) Close() error { return nil }

// fakeJobQueue records every Add call; Process is never exercised
// since the worker tests drive processEvent/dispatch directly.
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

// fakeLock is a passthrough DistributedLock: real locking is an
// adapter concern (pkg/lock/redislock) the worker's own tests don't
// need to re-verify.
type fakeLock struct{}

func (fakeLock) WithLock(ctx context.Context, key string, opts ports.LockOptions, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeProgressStore is an in-memory ports.ProgressStore.
type fakeProgressStore struct {
	records map[string]*domain.ProgressRecord
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{records: make(map[string]*domain.ProgressRecord)}
}

func (p *fakeProgressStore) Set(ctx context.Context, key string, record domain.ProgressRecord) error {
	cp := record
	p.records[key] = &cp
	return nil
}

func (p *fakeProgressStore) Get(ctx context.Context, key string) (*domain.ProgressRecord, error) {
	r, ok := p.records[key]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFound, "no progress record: "+key)
	}
	cp := *r
	return &cp, nil
}

func (p *fakeProgressStore) Update(ctx context.Context, key string, fn func(r *domain.ProgressRecord)) error {
	r, ok := p.records[key]
	if !ok {
		r = &domain.ProgressRecord{SyncEventID: key}
		p.records[key] = r
	}
	fn(r)
	return nil
}

func (p *fakeProgressStore) Delete(ctx context.Context, key string) error {
	delete(p.records, key)
	return nil
}

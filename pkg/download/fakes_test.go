package download

import (
	"bytes"
	"context"
	"io"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// fakeMetadataStore is a minimal in-memory ports.MetadataStore
// exercising only the methods the download router calls, in the same
// hand-written-fake convention as pkg/upload, pkg/syncworker and
// pkg/cacherestore.
type fakeMetadataStore struct {
	files          map[string]*domain.File
	storageObjects map[string]*domain.StorageObject
	sessions       map[string]*domain.UploadSession
	parts          map[string][]domain.UploadPart
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		files:          make(map[string]*domain.File),
		storageObjects: make(map[string]*domain.StorageObject),
		sessions:       make(map[string]*domain.UploadSession),
		parts:          make(map[string][]domain.UploadPart),
	}
}

func soKey(fileID string, tier domain.Tier) string {
	return fileID + ":" + string(tier)
}

// fakeTransaction is a no-op ports.Transaction: the fake store applies
// writes immediately, so there is nothing to commit or roll back.
type fakeTransaction struct{}

func (fakeTransaction) Commit(ctx context.Context) error   { return nil }
func (fakeTransaction) Rollback(ctx context.Context) error { return nil }

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
	return nil, apperr.New(apperr.ErrFileNotFound, "not implemented")
}
func (f *fakeMetadataStore) CreateFile(ctx context.Context, file *domain.File) error {
	cp := *file
	f.files[file.ID] = &cp
	return nil
}
func (f *fakeMetadataStore) UpdateFile(ctx context.Context, file *domain.File) error {
	cp := *file
	f.files[file.ID] = &cp
	return nil
}
func (f *fakeMetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	delete(f.files, fileID)
	return nil
}
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
			cp := *sess
			return &cp, nil
		}
	}
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

// fakeBlobStore is a real in-memory ports.NASStore (superset of
// CacheStore) so range reads actually slice bytes, the way the parts
// reader and serveFromTier depend on.
type fakeBlobStore struct {
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) Write(ctx context.Context, key string, data []byte) error {
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}
func (s *fakeBlobStore) StreamWrite(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.blobs[key] = data
	return int64(len(data)), nil
}
func (s *fakeBlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	return data, nil
}
func (s *fakeBlobStore) StreamRead(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
func (s *fakeBlobStore) RangeStreamRead(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, apperr.New(apperr.ErrInvalidRange, "offset out of bounds")
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}
func (s *fakeBlobStore) Delete(ctx context.Context, key string) error {
	delete(s.blobs, key)
	return nil
}
func (s *fakeBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.blobs[key]
	return ok, nil
}
func (s *fakeBlobStore) Move(ctx context.Context, srcKey, dstKey string) error {
	data, ok := s.blobs[srcKey]
	if !ok {
		return apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	delete(s.blobs, srcKey)
	s.blobs[dstKey] = data
	return nil
}
func (s *fakeBlobStore) Size(ctx context.Context, key string) (int64, error) {
	data, ok := s.blobs[key]
	if !ok {
		return 0, apperr.New(apperr.ErrFileNotFoundInStorage, "not found")
	}
	return int64(len(data)), nil
}
func (s *fakeBlobStore) Rmdir(ctx context.Context, prefix string) error { return nil }

func (s *fakeBlobStore) Preallocate(ctx context.Context, key string, size int64) error {
	if _, ok := s.blobs[key]; !ok {
		s.blobs[key] = make([]byte, size)
	}
	return nil
}
func (s *fakeBlobStore) ChunkWrite(ctx context.Context, key string, data []byte, offset int64) error {
	buf := s.blobs[key]
	if int64(len(buf)) < offset+int64(len(data)) {
		grown := make([]byte, offset+int64(len(data)))
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	s.blobs[key] = buf
	return nil
}
func (s *fakeBlobStore) CreateFolder(ctx context.Context, path string) error { return nil }
func (s *fakeBlobStore) DeleteFolder(ctx context.Context, path string) error { return nil }
func (s *fakeBlobStore) MoveFolder(ctx context.Context, srcPath, dstPath string) error { return nil }

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

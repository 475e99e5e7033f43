// Package download implements the cache-first, NAS-fallback download
// router: range negotiation, lease acquisition, and the parts-branch
// fallback that serves bytes out of a still-assembling multipart
// upload while its NAS sync is in flight.
package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"sort"
	"time"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
	"github.com/marmos91/filestore/pkg/rangeutil"
	"github.com/marmos91/filestore/pkg/streamutil"
)

// previewMimeWhitelist lists MIME types served with
// Content-Disposition: inline instead of attachment.
var previewMimeWhitelist = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"text/plain":      true,
}

// Status is the outcome of a Download call, independent of any HTTP
// framework so it can be mapped onto any transport.
type Status int

const (
	StatusOK             Status = 200
	StatusPartialContent Status = 206
	StatusRangeNotSatisfiable Status = 416
)

// Result carries everything the caller needs to write an HTTP
// response: headers, an optional byte stream, and a release function
// that must run exactly once when the stream is done (or was never
// opened because the request failed fast).
type Result struct {
	Status  Status
	Headers map[string]string
	Stream  io.ReadCloser // nil for 416 responses
	Release func()
}

// Router implements spec §4.2's download algorithm.
type Router struct {
	Metadata ports.MetadataStore
	Cache    ports.CacheStore
	NAS      ports.NASStore
	Queue    ports.JobQueue
}

// Download implements the public download(fileId, rangeHdr?, ifRangeHdr?)
// operation.
func (r *Router) Download(ctx context.Context, fileID, rangeHdr, ifRangeHdr string) (*Result, error) {
	f, err := r.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	switch f.State {
	case domain.FileTrashed:
		return nil, apperr.InTrash(fileID)
	case domain.FileDeleted:
		return nil, apperr.Deleted(fileID)
	}

	rng, hasRange, err := rangeutil.Parse(rangeHdr, f.SizeBytes)
	if err != nil {
		return r.unsatisfiable(f), nil
	}

	nasObj, err := r.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil && !isNotFoundInStorage(err) {
		return nil, err
	}

	usable, cacheObj, err := r.reconcileCache(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if usable {
		return r.serveFromTier(ctx, f, cacheObj, r.Cache, rng, hasRange, ifRangeHdr)
	}

	// Cache can't serve. A SYNCING NAS object means a writer is mid-
	// flight: a COMPLETING multipart session can still satisfy the read
	// from its parts; anything else is a transient conflict.
	if nasObj != nil && nasObj.AvailabilityStatus == domain.Syncing {
		if session, ok := r.findCompletingSession(ctx, fileID); ok {
			return r.servePartsBranch(ctx, f, session, rng, hasRange, ifRangeHdr)
		}
		return nil, apperr.NewForFile(apperr.ErrFileSyncing, "file is being written to the archive tier", fileID)
	}

	if nasObj != nil && nasObj.AvailabilityStatus == domain.Available {
		res, err := r.serveFromTier(ctx, f, nasObj, r.NAS, rng, hasRange, ifRangeHdr)
		if err != nil {
			return nil, err
		}
		r.enqueueCacheRestore(ctx, fileID)
		return res, nil
	}

	if nasObj != nil {
		return nil, apperr.NewForFile(apperr.ErrFileStorageUnavailable, "archive tier object is not available", fileID)
	}
	return nil, apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "no storage object in either tier", fileID)
}

func isNotFoundInStorage(err error) bool {
	code, ok := apperr.CodeOf(err)
	return ok && code == apperr.ErrFileNotFoundInStorage
}

// reconcileCache implements spec §4.1's reconcileCache(fileId)
// contract: reconcile the DB row against disk presence, idempotently.
func (r *Router) reconcileCache(ctx context.Context, fileID string) (usable bool, obj *domain.StorageObject, err error) {
	row, err := r.Metadata.GetStorageObject(ctx, fileID, domain.TierCache)
	if err != nil && !isNotFoundInStorage(err) {
		return false, nil, err
	}

	objectKey := fileID
	if row != nil {
		objectKey = row.ObjectKey
	}
	present, err := r.Cache.Exists(ctx, objectKey)
	if err != nil {
		return false, nil, err
	}

	switch {
	case row != nil && row.AvailabilityStatus == domain.Available && !present:
		row.AvailabilityStatus = domain.Missing
		if err := r.Metadata.UpsertStorageObject(ctx, row); err != nil {
			return false, nil, err
		}
		return false, nil, nil

	case (row == nil || row.AvailabilityStatus != domain.Available) && present:
		if row == nil {
			row = &domain.StorageObject{
				ID:                 fileID,
				FileID:             fileID,
				Tier:               domain.TierCache,
				ObjectKey:          fileID,
				AvailabilityStatus: domain.Available,
				CreatedAt:          time.Now().UTC(),
			}
		} else {
			row.AvailabilityStatus = domain.Available
		}
		if err := r.Metadata.UpsertStorageObject(ctx, row); err != nil {
			return false, nil, err
		}
		return true, row, nil

	default:
		return row != nil && row.AvailabilityStatus == domain.Available && present, row, nil
	}
}

func (r *Router) findCompletingSession(ctx context.Context, fileID string) (*domain.UploadSession, bool) {
	session, err := r.Metadata.GetCompletingSessionByFileID(ctx, fileID)
	if err != nil {
		logger.Error("failed to look up completing session", "fileId", fileID, "error", err)
		return nil, false
	}
	return session, session != nil
}

func (r *Router) serveFromTier(ctx context.Context, f *domain.File, obj *domain.StorageObject, store ports.CacheStore, rng rangeutil.Range, hasRange bool, ifRangeHdr string) (*Result, error) {
	etag := ""
	if obj.Checksum != nil {
		etag = `"` + *obj.Checksum + `"`
	}

	if hasRange && ifRangeHdr != "" && ifRangeHdr != etag {
		hasRange = false
	}

	// The lease must be durable before the stream is handed out:
	// trash/purge read the row's lease_count, not this process's
	// memory, to decide whether the object is in use.
	obj.AcquireLease()
	if err := r.Metadata.AcquireStorageLease(ctx, f.ID, obj.Tier); err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		obj.ReleaseLease()
		// Targeted decrement only: the snapshot in obj is stale by
		// stream end, so writing the whole row back would revert any
		// concurrent transition on it.
		if err := r.Metadata.ReleaseStorageLease(context.Background(), f.ID, obj.Tier); err != nil {
			logger.Error("failed to persist lease release", "fileId", f.ID, "tier", obj.Tier, "error", err)
		}
	}

	var stream io.ReadCloser
	var err error
	if hasRange {
		stream, err = store.RangeStreamRead(ctx, obj.ObjectKey, rng.Start, rng.Length())
	} else {
		stream, err = store.StreamRead(ctx, obj.ObjectKey)
	}
	if err != nil {
		release()
		return nil, err
	}
	expected := f.SizeBytes
	if hasRange {
		expected = rng.Length()
	}
	stream = newVerifyingStream(stream, f.ID, expected)

	headers := baseHeaders(f, etag)
	status := StatusOK
	if hasRange {
		status = StatusPartialContent
		headers["Content-Range"] = rangeutil.ContentRange(rng, f.SizeBytes)
		headers["Content-Length"] = fmt.Sprintf("%d", rng.Length())
	} else {
		headers["Content-Length"] = fmt.Sprintf("%d", f.SizeBytes)
		if obj.Checksum != nil {
			headers["X-Checksum-SHA256"] = *obj.Checksum
		}
	}

	return &Result{Status: status, Headers: headers, Stream: stream, Release: release}, nil
}

func (r *Router) unsatisfiable(f *domain.File) *Result {
	return &Result{
		Status: StatusRangeNotSatisfiable,
		Headers: map[string]string{
			"Content-Range": rangeutil.ContentRangeUnsatisfiable(f.SizeBytes),
		},
		Release: func() {},
	}
}

func (r *Router) enqueueCacheRestore(ctx context.Context, fileID string) {
	payload := []byte(`{"fileId":"` + fileID + `"}`)
	_, err := r.Queue.Add(ctx, "CACHE_RESTORE", payload, ports.JobOptions{JobID: "cache-restore:" + fileID})
	if err != nil {
		logger.Error("failed to enqueue cache restore", "fileId", fileID, "error", err)
	}
}

func baseHeaders(f *domain.File, etag string) map[string]string {
	headers := map[string]string{
		"Content-Type":  f.MimeType,
		"Accept-Ranges": "bytes",
	}
	if etag != "" {
		headers["ETag"] = etag
	}
	headers["Last-Modified"] = f.UpdatedAt.UTC().Format(time.RFC1123)

	disposition := "attachment"
	if previewMimeWhitelist[f.MimeType] {
		disposition = "inline"
	}
	headers["Content-Disposition"] = fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(f.Name))

	return headers
}

// servePartsBranch implements spec §4.2's parts branch: the NAS object
// is still SYNCING but a COMPLETING UploadSession exists, so bytes are
// pieced together from its completed cache-tier parts.
func (r *Router) servePartsBranch(ctx context.Context, f *domain.File, session *domain.UploadSession, rng rangeutil.Range, hasRange bool, ifRangeHdr string) (*Result, error) {
	parts, err := r.Metadata.ListUploadParts(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	if ifRangeHdr != "" {
		hasRange = false
	}

	start, end := int64(0), f.SizeBytes-1
	if hasRange {
		start, end = rng.Start, rng.End
	}

	startPart := int(start/session.PartSize) + 1
	endPart := int(end/session.PartSize) + 1

	var selected []domain.UploadPart
	for _, p := range parts {
		if p.PartNumber >= startPart && p.PartNumber <= endPart {
			selected = append(selected, p)
		}
	}

	stream := &partsReader{ctx: ctx, cache: r.Cache, parts: selected, partSize: session.PartSize, start: start, end: end}

	headers := map[string]string{
		"Content-Type":  f.MimeType,
		"Accept-Ranges": "bytes",
		"Last-Modified": f.UpdatedAt.UTC().Format(time.RFC1123),
	}
	status := StatusOK
	if hasRange {
		status = StatusPartialContent
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", start, end, f.SizeBytes)
		headers["Content-Length"] = fmt.Sprintf("%d", end-start+1)
	} else {
		headers["Content-Length"] = fmt.Sprintf("%d", f.SizeBytes)
	}
	if t := mime.TypeByExtension(f.Extension()); t != "" {
		headers["Content-Type"] = t
	}

	return &Result{Status: status, Headers: headers, Stream: stream, Release: func() {}}, nil
}

// partsReader pipes a sequence of upload parts, each stored under its
// own cache object key, as one continuous byte stream covering
// [start, end] of the logical file.
type partsReader struct {
	ctx      context.Context
	cache    ports.CacheStore
	parts    []domain.UploadPart
	partSize int64
	start    int64
	end      int64

	idx     int
	current io.ReadCloser
}

func (p *partsReader) Read(b []byte) (int, error) {
	for {
		if p.current == nil {
			if p.idx >= len(p.parts) {
				return 0, io.EOF
			}
			part := p.parts[p.idx]
			partOffset := int64(part.PartNumber-1) * p.partSize
			lo := maxInt64(p.start-partOffset, 0)
			hi := minInt64(p.end-partOffset, part.Size-1)
			if hi < lo {
				p.idx++
				continue
			}
			rc, err := p.cache.RangeStreamRead(p.ctx, part.ObjectKey, lo, hi-lo+1)
			if err != nil {
				return 0, err
			}
			p.current = rc
		}

		n, err := p.current.Read(b)
		if err == io.EOF {
			_ = p.current.Close()
			p.current = nil
			p.idx++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (p *partsReader) Close() error {
	if p.current != nil {
		return p.current.Close()
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// verifyingStream wraps a served object's stream in a byte counter and
// logs a mismatch against the expected length on Close, per spec
// §4.2 step 9. It never buffers: every Read call passes straight
// through to the underlying stream.
type verifyingStream struct {
	io.ReadCloser
	counting *streamutil.CountingReader
	fileID   string
	expected int64
}

func newVerifyingStream(rc io.ReadCloser, fileID string, expected int64) io.ReadCloser {
	counting := streamutil.NewCountingReader(rc)
	return &verifyingStream{ReadCloser: rc, counting: counting, fileID: fileID, expected: expected}
}

func (v *verifyingStream) Read(p []byte) (int, error) {
	return v.counting.Read(p)
}

func (v *verifyingStream) Close() error {
	if got := v.counting.Count(); got != v.expected {
		logger.Warn("downloaded byte count mismatch", "fileId", v.fileID, "expected", v.expected, "got", got)
	}
	return v.ReadCloser.Close()
}

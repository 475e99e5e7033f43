package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/admission"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/download"
	"github.com/marmos91/filestore/pkg/fileops"
	prommetrics "github.com/marmos91/filestore/pkg/metrics/prometheus"
	"github.com/marmos91/filestore/pkg/ports"
	"github.com/marmos91/filestore/pkg/upload"
)

// Handlers bundles the core engines the HTTP layer glues together.
// Metrics may be nil (every method on it is nil-safe).
type Handlers struct {
	Upload    *upload.Engine
	Multipart *upload.MultipartEngine
	FileOps   *fileops.Engine
	Downloads *download.Router
	Admission *admission.Queue
	Metadata  ports.MetadataStore
	Progress  ports.ProgressStore
	Metrics   *prommetrics.Metrics
}

// userID extracts the caller identity. Authentication is a collaborator
// concern; the upstream proxy is trusted to have set the header.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// fileDTO is the JSON shape of a File.
type fileDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FolderID  string    `json:"folderId"`
	SizeBytes int64     `json:"sizeBytes"`
	MimeType  string    `json:"mimeType"`
	State     string    `json:"state"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toFileDTO(f *domain.File) fileDTO {
	return fileDTO{
		ID:        f.ID,
		Name:      f.Name,
		FolderID:  f.FolderID,
		SizeBytes: f.SizeBytes,
		MimeType:  f.MimeType,
		State:     string(f.State),
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// handleUploadFile is the one-shot upload path: the request body is the
// payload, streamed straight into the engine.
func (h *Handlers) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "query parameter 'name' is required")
		return
	}
	if r.ContentLength < 0 {
		badRequest(w, "Content-Length is required")
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	f, err := h.Upload.Upload(r.Context(), upload.Request{
		FolderID:  r.URL.Query().Get("folder_id"),
		FileName:  name,
		MimeType:  mimeType,
		TotalSize: r.ContentLength,
		Data:      r.Body,
		CreatedBy: userID(r),
	})
	if err != nil {
		h.Metrics.ObserveUpload("one-shot", "error", 0)
		writeError(w, err)
		return
	}

	h.Metrics.ObserveUpload("one-shot", "ok", f.SizeBytes)
	writeJSON(w, http.StatusCreated, toFileDTO(f))
}

// handleDownload serves file bytes, honoring Range and If-Range.
func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	res, err := h.Downloads.Download(r.Context(), fileID, r.Header.Get("Range"), r.Header.Get("If-Range"))
	if err != nil {
		h.Metrics.ObserveDownload("error", "", 0)
		writeError(w, err)
		return
	}
	defer res.Release()

	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(int(res.Status))

	if res.Stream == nil {
		h.Metrics.ObserveDownload(strconv.Itoa(int(res.Status)), "", 0)
		return
	}
	defer res.Stream.Close()

	n, err := io.Copy(w, res.Stream)
	if err != nil {
		// Headers are out; all we can do is log and let Release run.
		logger.Warn("download stream interrupted", "fileId", fileID, "bytesWritten", n, "error", err)
	}
	h.Metrics.ObserveDownload(strconv.Itoa(int(res.Status)), "", n)
}

func (h *Handlers) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewName string `json:"newName"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	f, err := h.FileOps.Rename(r.Context(), chi.URLParam(r, "fileID"), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileDTO(f))
}

func (h *Handlers) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetFolderID   string `json:"targetFolderId"`
		ConflictStrategy string `json:"conflictStrategy"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	f, skipped, err := h.FileOps.Move(r.Context(), chi.URLParam(r, "fileID"), req.TargetFolderID, domain.ConflictStrategy(req.ConflictStrategy))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		File    fileDTO `json:"file"`
		Skipped bool    `json:"skipped"`
	}{toFileDTO(f), skipped})
}

func (h *Handlers) handleTrash(w http.ResponseWriter, r *http.Request) {
	f, err := h.FileOps.Trash(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileDTO(f))
}

func (h *Handlers) handleRestore(w http.ResponseWriter, r *http.Request) {
	f, err := h.FileOps.Restore(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileDTO(f))
}

func (h *Handlers) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := h.FileOps.Purge(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Purged bool `json:"purged"`
	}{true})
}

// progressDTO is the JSON shape of a sync-progress poll. Status is
// "IDLE" when no sync has ever been recorded for the file.
type progressDTO struct {
	Status           string     `json:"status"`
	Percent          float64    `json:"percent"`
	CompletedChunks  int        `json:"completedChunks"`
	TotalChunks      int        `json:"totalChunks"`
	BytesTransferred int64      `json:"bytesTransferred"`
	TotalBytes       int64      `json:"totalBytes"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	Error            *string    `json:"error,omitempty"`
}

// handleSyncProgress reports the latest sync event's progress snapshot:
// a live ProgressRecord if the worker published one, else a status-only
// view derived from the event row, else IDLE.
func (h *Handlers) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	event, err := h.Metadata.GetLatestSyncEvent(r.Context(), fileID)
	if err != nil {
		if code, ok := apperr.CodeOf(err); ok && code == apperr.ErrFileNotFound {
			writeJSON(w, http.StatusOK, progressDTO{Status: "IDLE"})
			return
		}
		writeError(w, err)
		return
	}

	record, err := h.Progress.Get(r.Context(), event.ID)
	if err != nil {
		logger.Warn("failed to read progress record", "syncEventId", event.ID, "error", err)
	}
	if record == nil {
		writeJSON(w, http.StatusOK, progressDTO{Status: string(event.Status), Error: event.ErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, progressDTO{
		Status:           string(record.Status),
		Percent:          record.Percent,
		CompletedChunks:  record.CompletedChunks,
		TotalChunks:      record.TotalChunks,
		BytesTransferred: record.BytesTransferred,
		TotalBytes:       record.TotalBytes,
		StartedAt:        &record.StartedAt,
		UpdatedAt:        &record.UpdatedAt,
		Error:            record.Error,
	})
}

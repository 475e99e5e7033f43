package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/domain"
)

// sessionDTO is the JSON shape of an UploadSession.
type sessionDTO struct {
	SessionID      string    `json:"sessionId"`
	FileName       string    `json:"fileName"`
	FolderID       string    `json:"folderId"`
	TotalSize      int64     `json:"totalSize"`
	PartSize       int64     `json:"partSize"`
	TotalParts     int       `json:"totalParts"`
	CompletedParts []int     `json:"completedParts"`
	UploadedBytes  int64     `json:"uploadedBytes"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expiresAt"`
	FileID         string    `json:"fileId,omitempty"`
}

func toSessionDTO(s *domain.UploadSession) sessionDTO {
	completed := make([]int, 0, len(s.CompletedParts))
	for n := 1; n <= s.TotalParts; n++ {
		if s.CompletedParts[n] {
			completed = append(completed, n)
		}
	}
	return sessionDTO{
		SessionID:      s.ID,
		FileName:       s.FileName,
		FolderID:       s.FolderID,
		TotalSize:      s.TotalSize,
		PartSize:       s.PartSize,
		TotalParts:     s.TotalParts,
		CompletedParts: completed,
		UploadedBytes:  s.UploadedBytes,
		Status:         string(s.Status),
		ExpiresAt:      s.ExpiresAt,
		FileID:         s.FileID,
	}
}

// handleInitiate runs a multipart initiate through admission control:
// either an immediate ACTIVE session (201) or a WAITING ticket (202).
func (h *Handlers) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName         string `json:"fileName"`
		FolderID         string `json:"folderId"`
		TotalSize        int64  `json:"totalSize"`
		MimeType         string `json:"mimeType"`
		ConflictStrategy string `json:"conflictStrategy"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	uid := userID(r)
	result, err := h.Admission.TryInitiateOrEnqueue(domain.UploadRequest{
		FileName:         req.FileName,
		FolderID:         req.FolderID,
		TotalSize:        req.TotalSize,
		MimeType:         req.MimeType,
		ConflictStrategy: domain.ConflictStrategy(req.ConflictStrategy),
		CreatedBy:        uid,
	}, uid)
	if err != nil {
		h.Metrics.RecordAdmissionDecision("rejected")
		writeError(w, err)
		return
	}

	if result.Status == domain.TicketWaiting {
		h.Metrics.RecordAdmissionDecision("queued")
		writeJSON(w, http.StatusAccepted, struct {
			Status     string `json:"status"`
			TicketID   string `json:"ticketId"`
			Position   int    `json:"position"`
			ETASeconds int    `json:"etaSeconds"`
		}{string(result.Status), result.TicketID, result.Position, result.ETASeconds})
		return
	}

	h.Metrics.RecordAdmissionDecision("admitted")
	sess, err := h.Metadata.GetUploadSession(r.Context(), result.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Status  string     `json:"status"`
		Session sessionDTO `json:"session"`
	}{string(result.Status), toSessionDTO(sess)})
}

// handleQueueStatus polls an admission ticket, lazily promoting it.
func (h *Handlers) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.Admission.GetQueueStatus(chi.URLParam(r, "ticketID"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		Status        string      `json:"status"`
		Position      int         `json:"position,omitempty"`
		ETASeconds    int         `json:"etaSeconds,omitempty"`
		Session       *sessionDTO `json:"session,omitempty"`
		ClaimDeadline *time.Time  `json:"claimDeadline,omitempty"`
	}{Status: string(result.Status), Position: result.Position, ETASeconds: result.ETASeconds}

	if result.Status == domain.TicketReady {
		sess, err := h.Metadata.GetUploadSession(r.Context(), result.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		dto := toSessionDTO(sess)
		resp.Session = &dto
		resp.ClaimDeadline = &result.ClaimDeadline
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClaim transitions a READY ticket to ACTIVE once the client
// starts using its promoted session.
func (h *Handlers) handleClaim(w http.ResponseWriter, r *http.Request) {
	if err := h.Admission.Claim(chi.URLParam(r, "ticketID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Claimed bool `json:"claimed"`
	}{true})
}

// handleCancelTicket withdraws a WAITING or READY ticket.
func (h *Handlers) handleCancelTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.Admission.Cancel(chi.URLParam(r, "ticketID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Cancelled bool `json:"cancelled"`
	}{true})
}

// handleUploadPart stores one part; replays with identical bytes are
// idempotent and return the same progress snapshot.
func (h *Handlers) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	partNumber, err := strconv.Atoi(chi.URLParam(r, "partNumber"))
	if err != nil {
		badRequest(w, "part number must be an integer")
		return
	}

	sess, err := h.Multipart.UploadPart(r.Context(), chi.URLParam(r, "sessionID"), partNumber, r.Body)
	if err != nil {
		h.Metrics.ObserveUpload("part", "error", 0)
		writeError(w, err)
		return
	}

	h.Metrics.ObserveUpload("part", "ok", sess.PartSize)
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// handleComplete assembles the session into a File and frees its
// admission reservation: the upload traffic is done even though the
// NAS sync is still running.
func (h *Handlers) handleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	f, err := h.Multipart.Complete(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.releaseAdmission(r, sessionID)
	h.Metrics.ObserveUpload("multipart", "ok", f.SizeBytes)
	writeJSON(w, http.StatusOK, toFileDTO(f))
}

// handleSessionStatus reports a session snapshot.
func (h *Handlers) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Multipart.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// handleAbort aborts a session and frees its admission reservation.
func (h *Handlers) handleAbort(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.Multipart.Abort(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}

	h.releaseAdmission(r, sessionID)
	writeJSON(w, http.StatusOK, struct {
		Aborted bool `json:"aborted"`
	}{true})
}

// releaseAdmission frees the capacity an ACTIVE session reserved. The
// session row survives complete/abort, so its CreatedBy/TotalSize are
// still readable afterwards.
func (h *Handlers) releaseAdmission(r *http.Request, sessionID string) {
	sess, err := h.Metadata.GetUploadSession(r.Context(), sessionID)
	if err != nil {
		logger.Warn("failed to load session for admission release", "sessionId", sessionID, "error", err)
		return
	}
	h.Admission.ReleaseSession(sess.CreatedBy, sess.TotalSize)
}

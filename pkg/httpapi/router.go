// Package httpapi is the chi-based glue layer exposing the core's
// operations over HTTP. It owns routing, JSON shaping, and error-code
// translation only; all semantics live in the engines it calls.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/filestore/internal/logger"
)

// NewRouter wires the middleware stack and routes.
//
// Routes:
//   - GET  /health                                   - liveness probe
//   - GET  /health/ready                             - readiness probe
//   - POST /api/v1/files?name=&folder_id=            - one-shot upload (body = payload)
//   - GET  /api/v1/files/{fileID}/content            - download (Range / If-Range aware)
//   - POST /api/v1/files/{fileID}/rename             - rename
//   - POST /api/v1/files/{fileID}/move               - move
//   - DELETE /api/v1/files/{fileID}                  - trash
//   - POST /api/v1/files/{fileID}/restore            - restore from trash
//   - DELETE /api/v1/files/{fileID}/purge            - purge (irreversible)
//   - GET  /api/v1/files/{fileID}/sync-progress      - NAS sync progress
//   - POST /api/v1/uploads                           - multipart initiate (admission-controlled)
//   - GET  /api/v1/uploads/queue/{ticketID}          - admission ticket poll
//   - POST /api/v1/uploads/queue/{ticketID}/claim    - claim a READY ticket
//   - DELETE /api/v1/uploads/queue/{ticketID}        - cancel a ticket
//   - GET  /api/v1/uploads/{sessionID}               - session status
//   - PUT  /api/v1/uploads/{sessionID}/parts/{partNumber} - part upload (body = part bytes)
//   - POST /api/v1/uploads/{sessionID}/complete      - complete multipart
//   - DELETE /api/v1/uploads/{sessionID}             - abort multipart
//
// No global timeout middleware: uploads and downloads are long-lived
// streams bounded by the server's read/write timeouts instead.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", handleLiveness)
		r.Get("/ready", handleLiveness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.handleUploadFile)
			r.Route("/{fileID}", func(r chi.Router) {
				r.Get("/content", h.handleDownload)
				r.Post("/rename", h.handleRename)
				r.Post("/move", h.handleMove)
				r.Delete("/", h.handleTrash)
				r.Post("/restore", h.handleRestore)
				r.Delete("/purge", h.handlePurge)
				r.Get("/sync-progress", h.handleSyncProgress)
			})
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", h.handleInitiate)
			r.Route("/queue/{ticketID}", func(r chi.Router) {
				r.Get("/", h.handleQueueStatus)
				r.Post("/claim", h.handleClaim)
				r.Delete("/", h.handleCancelTicket)
			})
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.handleSessionStatus)
				r.Put("/parts/{partNumber}", h.handleUploadPart)
				r.Post("/complete", h.handleComplete)
				r.Delete("/", h.handleAbort)
			})
		})
	})

	return r
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Healthy bool `json:"healthy"`
	}{true})
}

// requestLogger logs one line per request with method, path, status and
// duration, through the service's structured logger instead of chi's
// default stdout format.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

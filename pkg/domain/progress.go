package domain

import "time"

// ProgressTTL is the lifetime a ProgressRecord is retained in the
// Progress Store after its last update.
const ProgressTTL = time.Hour

// ProgressStatus mirrors the owning SyncEvent/UploadSession's coarse
// state for clients polling progress.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "STARTED"
	ProgressRunning   ProgressStatus = "RUNNING"
	ProgressCompleted ProgressStatus = "COMPLETED"
	ProgressFailed    ProgressStatus = "FAILED"
)

// ProgressRecord is the ephemeral, TTL-bounded progress snapshot keyed
// by syncEventId in the Progress Store.
type ProgressRecord struct {
	SyncEventID      string
	Status           ProgressStatus
	Percent          float64
	CompletedChunks  int
	TotalChunks      int
	BytesTransferred int64
	TotalBytes       int64
	StartedAt        time.Time
	UpdatedAt        time.Time
	Error            *string
}

// ComputePercent derives the completion percentage from transferred vs
// total bytes, clamped to [0, 100].
func ComputePercent(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(transferred) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

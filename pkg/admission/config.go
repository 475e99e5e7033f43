package admission

import "time"

// Config is the fixed set of admission control knobs, read once at
// startup. All fields are required; Defaults fills in reasonable
// values for local development.
type Config struct {
	MaxActiveSessions         int
	MaxSessionsPerUser        int
	MaxTotalUploadBytes       int64
	MaxFileSizeBytes          int64
	QueueTicketTTL            time.Duration
	QueueReadyClaimWindow     time.Duration
	MaxQueueSize              int
	EstimatedSessionDuration  time.Duration
}

// Defaults returns the configuration used when none is supplied.
func Defaults() Config {
	return Config{
		MaxActiveSessions:        100,
		MaxSessionsPerUser:       5,
		MaxTotalUploadBytes:      50 << 30, // 50 GiB
		MaxFileSizeBytes:         10 << 30, // 10 GiB
		QueueTicketTTL:           10 * time.Minute,
		QueueReadyClaimWindow:    5 * time.Minute,
		MaxQueueSize:             1000,
		EstimatedSessionDuration: 30 * time.Second,
	}
}

package domain

import "time"

// TicketStatus is the lifecycle state of a QueueTicket.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "WAITING"
	TicketReady     TicketStatus = "READY"
	TicketActive    TicketStatus = "ACTIVE"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// DefaultReadyClaimWindow is the default window a READY ticket has to
// be claimed before it expires back out of the queue.
const DefaultReadyClaimWindow = 5 * time.Minute

// UploadRequest is the snapshot of the client's initiate request, held
// by a QueueTicket until it is promoted.
type UploadRequest struct {
	FileName         string
	FolderID         string
	TotalSize        int64
	MimeType         string
	ConflictStrategy ConflictStrategy
	CreatedBy        string
}

// QueueTicket is an ephemeral, process-local admission ticket. It is
// never persisted: on restart the virtual queue is empty and only the
// DB-backed UploadSession rows survive, which is correct — clients
// either resume from sessionId or see their session expire normally.
type QueueTicket struct {
	TicketID        string
	UserID          string
	Status          TicketStatus
	Request         UploadRequest
	SessionID       string // set once promoted to ACTIVE
	CreatedAt       time.Time
	TicketExpiresAt time.Time
	ReadyAt         time.Time
}

// ClaimDeadline returns the deadline by which a READY ticket must be
// claimed, computed from ReadyAt.
func (t *QueueTicket) ClaimDeadline() time.Time {
	return t.ReadyAt.Add(DefaultReadyClaimWindow)
}

// CanTransitionTo reports whether moving from t.Status to next is legal.
func (t *QueueTicket) CanTransitionTo(next TicketStatus) bool {
	switch t.Status {
	case TicketWaiting:
		return next == TicketReady || next == TicketCancelled || next == TicketExpired
	case TicketReady:
		return next == TicketActive || next == TicketExpired || next == TicketCancelled
	default:
		return false // ACTIVE, CANCELLED, EXPIRED are terminal
	}
}

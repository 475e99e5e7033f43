// Package admission implements the virtual queue that bounds concurrent
// upload sessions: a ticket moves WAITING -> READY -> ACTIVE as
// capacity frees up, with per-user fairness and FIFO ordering among
// waiters.
package admission

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

// SessionFactory creates the real UploadSession (or small-upload
// reservation) once a request is admitted, returning the sessionId
// recorded on the ticket. It must be side-effect-free to call more
// than once only if the first call failed.
type SessionFactory func(req domain.UploadRequest, userID string) (sessionID string, err error)

// InitResult is returned by TryInitiateOrEnqueue.
type InitResult struct {
	Status    domain.TicketStatus // ACTIVE or WAITING
	TicketID  string
	SessionID string // set when Status == ACTIVE
	Position  int    // 1-based queue position, set when Status == WAITING
	ETASeconds int
}

// PollResult is returned by GetQueueStatus.
type PollResult struct {
	Status         domain.TicketStatus
	SessionID      string
	Position       int
	ETASeconds     int
	ClaimDeadline  time.Time
}

// Queue is the in-process virtual queue. It holds no durable state:
// on restart the queue is empty, which is correct per the design note
// that only DB-backed UploadSession rows need to survive a restart.
type Queue struct {
	cfg     Config
	factory SessionFactory

	mu       sync.Mutex
	tickets  map[string]*domain.QueueTicket
	waiting  []string // ticketIDs, FIFO order
	active   int
	perUser  map[string]int // active+ready count per user
	inFlight int64          // bytes reserved by active+ready tickets

	now func() time.Time
}

// New constructs a Queue. factory is invoked (with the queue's lock
// released) whenever a ticket is promoted to ACTIVE or READY.
func New(cfg Config, factory SessionFactory) *Queue {
	return &Queue{
		cfg:     cfg,
		factory: factory,
		tickets: make(map[string]*domain.QueueTicket),
		perUser: make(map[string]int),
		now:     time.Now,
	}
}

func (q *Queue) userActive(userID string) int {
	return q.perUser[userID]
}

// capacityFor reports whether admitting totalSize bytes right now
// would stay within the global caps.
func (q *Queue) capacityFor(totalSize int64) bool {
	return q.active < q.cfg.MaxActiveSessions && q.inFlight+totalSize <= q.cfg.MaxTotalUploadBytes
}

// TryInitiateOrEnqueue implements spec §4.4's tryInitiateOrEnqueue.
func (q *Queue) TryInitiateOrEnqueue(req domain.UploadRequest, userID string) (InitResult, error) {
	if req.TotalSize > q.cfg.MaxFileSizeBytes {
		return InitResult{}, apperr.New(apperr.ErrFileTooLarge, "file exceeds maximum allowed size")
	}

	q.mu.Lock()

	if q.userActive(userID) < q.cfg.MaxSessionsPerUser && q.capacityFor(req.TotalSize) {
		q.active++
		q.perUser[userID]++
		q.inFlight += req.TotalSize
		q.mu.Unlock()

		sessionID, err := q.factory(req, userID)
		if err != nil {
			q.mu.Lock()
			q.active--
			q.perUser[userID]--
			q.inFlight -= req.TotalSize
			q.mu.Unlock()
			return InitResult{}, err
		}
		return InitResult{Status: domain.TicketActive, SessionID: sessionID}, nil
	}

	if len(q.waiting) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		return InitResult{}, apperr.New(apperr.ErrAdmissionQueueFull, "upload queue is full, try again later")
	}

	now := q.now()
	ticket := &domain.QueueTicket{
		TicketID:        uuid.NewString(),
		UserID:          userID,
		Status:          domain.TicketWaiting,
		Request:         req,
		CreatedAt:       now,
		TicketExpiresAt: now.Add(q.cfg.QueueTicketTTL),
	}
	q.tickets[ticket.TicketID] = ticket
	q.waiting = append(q.waiting, ticket.TicketID)
	position := len(q.waiting)
	q.mu.Unlock()

	logger.Info("upload request enqueued", "ticketId", ticket.TicketID, "userId", userID, "position", position)

	return InitResult{
		Status:     domain.TicketWaiting,
		TicketID:   ticket.TicketID,
		Position:   position,
		ETASeconds: position * int(q.cfg.EstimatedSessionDuration.Seconds()),
	}, nil
}

// GetQueueStatus polls a ticket, lazily promoting it to READY if
// capacity now allows, and expiring it if its deadlines have passed.
func (q *Queue) GetQueueStatus(ticketID string) (PollResult, error) {
	q.mu.Lock()

	ticket, ok := q.tickets[ticketID]
	if !ok {
		q.mu.Unlock()
		return PollResult{}, apperr.New(apperr.ErrSessionNotFound, "ticket not found: "+ticketID)
	}

	now := q.now()
	q.expireLocked(ticket, now)

	if ticket.Status == domain.TicketWaiting {
		q.tryPromoteLocked(ticket, now)
	}

	result := PollResult{Status: ticket.Status, SessionID: ticket.SessionID}
	if ticket.Status == domain.TicketWaiting {
		result.Position = q.positionLocked(ticketID)
		result.ETASeconds = result.Position * int(q.cfg.EstimatedSessionDuration.Seconds())
	}
	if ticket.Status == domain.TicketReady {
		result.ClaimDeadline = ticket.ClaimDeadline()
	}

	needFactory := ticket.Status == domain.TicketReady && ticket.SessionID == ""
	req, userID := ticket.Request, ticket.UserID
	q.mu.Unlock()

	if needFactory {
		sessionID, err := q.factory(req, userID)
		q.mu.Lock()
		if err != nil {
			q.rollbackPromotionLocked(ticket)
			q.mu.Unlock()
			return PollResult{}, err
		}
		ticket.SessionID = sessionID
		result.SessionID = sessionID
		q.mu.Unlock()
	}

	return result, nil
}

func (q *Queue) positionLocked(ticketID string) int {
	for i, id := range q.waiting {
		if id == ticketID {
			return i + 1
		}
	}
	return 0
}

// expireLocked demotes a ticket past its deadlines. Called with q.mu held.
func (q *Queue) expireLocked(t *domain.QueueTicket, now time.Time) {
	switch t.Status {
	case domain.TicketWaiting:
		if now.After(t.TicketExpiresAt) {
			q.removeWaitingLocked(t.TicketID)
			t.Status = domain.TicketExpired
		}
	case domain.TicketReady:
		if now.After(t.ClaimDeadline()) {
			q.rollbackPromotionLocked(t)
			t.Status = domain.TicketExpired
		}
	}
}

func (q *Queue) removeWaitingLocked(ticketID string) {
	for i, id := range q.waiting {
		if id == ticketID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// tryPromoteLocked moves a WAITING ticket to READY if capacity and
// per-user headroom allow, reserving capacity before releasing the
// ticket from the waiting order so concurrent promotion attempts can't
// double-admit it.
func (q *Queue) tryPromoteLocked(t *domain.QueueTicket, now time.Time) {
	if q.userActive(t.UserID) >= q.cfg.MaxSessionsPerUser || !q.capacityFor(t.Request.TotalSize) {
		return
	}

	q.removeWaitingLocked(t.TicketID)
	t.Status = domain.TicketReady
	t.ReadyAt = now
	q.active++
	q.perUser[t.UserID]++
	q.inFlight += t.Request.TotalSize
}

// rollbackPromotionLocked undoes the capacity reservation made by
// tryPromoteLocked, used when claiming fails or the claim window lapses.
func (q *Queue) rollbackPromotionLocked(t *domain.QueueTicket) {
	q.active--
	q.perUser[t.UserID]--
	q.inFlight -= t.Request.TotalSize
}

// PromoteWaiting runs the same promotion pass GetQueueStatus does,
// called after a session completes/aborts/is cleaned up and by the
// periodic maintenance tick, per spec §4.4.
func (q *Queue) PromoteWaiting() {
	q.mu.Lock()
	now := q.now()
	candidates := append([]string(nil), q.waiting...)
	q.mu.Unlock()

	for _, ticketID := range candidates {
		q.mu.Lock()
		ticket, ok := q.tickets[ticketID]
		if !ok || ticket.Status != domain.TicketWaiting {
			q.mu.Unlock()
			continue
		}
		q.tryPromoteLocked(ticket, now)
		q.mu.Unlock()
	}
}

// ReleaseSession is called when an ACTIVE session completes, aborts, or
// is reaped, freeing its capacity reservation and triggering promotion.
func (q *Queue) ReleaseSession(userID string, totalSize int64) {
	q.mu.Lock()
	q.active--
	q.perUser[userID]--
	q.inFlight -= totalSize
	q.mu.Unlock()

	q.PromoteWaiting()
}

// MaintenanceTick runs the periodic (30s default) safety-net sweep:
// expire stale tickets, then promote whatever capacity frees up.
func (q *Queue) MaintenanceTick() {
	q.mu.Lock()
	now := q.now()
	all := make([]*domain.QueueTicket, 0, len(q.tickets))
	for _, t := range q.tickets {
		all = append(all, t)
	}
	for _, t := range all {
		q.expireLocked(t, now)
	}
	// Garbage-collect terminal tickets so the map doesn't grow unbounded.
	for id, t := range q.tickets {
		if t.Status == domain.TicketExpired || t.Status == domain.TicketCancelled || t.Status == domain.TicketActive {
			delete(q.tickets, id)
		}
	}
	q.mu.Unlock()

	q.PromoteWaiting()
}

// Claim transitions a READY ticket to ACTIVE once the caller has
// actually started using the promoted session.
func (q *Queue) Claim(ticketID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket, ok := q.tickets[ticketID]
	if !ok {
		return apperr.New(apperr.ErrSessionNotFound, "ticket not found: "+ticketID)
	}
	if !ticket.CanTransitionTo(domain.TicketActive) {
		return apperr.New(apperr.ErrInvalidArgument, "ticket is not in a claimable state: "+string(ticket.Status))
	}
	ticket.Status = domain.TicketActive
	delete(q.tickets, ticketID)
	return nil
}

// Cancel withdraws a WAITING or READY ticket, releasing any capacity
// it had reserved.
func (q *Queue) Cancel(ticketID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket, ok := q.tickets[ticketID]
	if !ok {
		return apperr.New(apperr.ErrSessionNotFound, "ticket not found: "+ticketID)
	}
	if !ticket.CanTransitionTo(domain.TicketCancelled) {
		return apperr.New(apperr.ErrInvalidArgument, "ticket is not cancellable: "+string(ticket.Status))
	}

	if ticket.Status == domain.TicketReady {
		q.rollbackPromotionLocked(ticket)
	} else {
		q.removeWaitingLocked(ticketID)
	}
	ticket.Status = domain.TicketCancelled
	delete(q.tickets, ticketID)
	return nil
}

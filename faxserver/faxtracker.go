package faxserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gofaxmodem/gofaxlib"
)

type FaxPhase string

const (
	PhaseQueued    FaxPhase = "QUEUED"     // read from the queue directory
	PhaseAttempt   FaxPhase = "ATTEMPTING" // an attempt is in-flight
	PhaseReceiving FaxPhase = "RECEIVING"  // an answered call
	PhaseWaiting   FaxPhase = "WAITING"    // backoff between attempts
	PhaseDone      FaxPhase = "DONE"       // finished (success/fail)
)

type FaxRunState struct {
	// identity
	JobUUID  uuid.UUID `json:"job_uuid"`
	CallUUID uuid.UUID `json:"call_uuid"` // latest session UUID (changes per attempt)

	Direction string `json:"direction"`
	Number    string `json:"number"`
	Modem     string `json:"modem"`

	// progress
	Phase          FaxPhase            `json:"phase"`
	Attempt        int                 `json:"attempt"`
	MaxAttempts    int                 `json:"max_attempts"`
	LastError      string              `json:"last_error"`
	LastResult     string              `json:"last_result"` // e.g. "OK", "RETRY", "FAILED"
	ResultSuccess  *bool               `json:"result_success,omitempty"`
	ResultSnapshot *gofaxlib.FaxResult `json:"result_snapshot,omitempty"`

	// timing
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FaxTracker tracks all in-flight jobs and answered calls.
type FaxTracker struct {
	mu      sync.RWMutex
	byJob   map[uuid.UUID]*FaxRunState
	byCall  map[uuid.UUID]uuid.UUID // CallUUID -> JobUUID (reverse index)
	running int                     // fast counter of active jobs
}

func NewFaxTracker() *FaxTracker {
	return &FaxTracker{
		byJob:  make(map[uuid.UUID]*FaxRunState),
		byCall: make(map[uuid.UUID]uuid.UUID),
	}
}

// Begin inserts/updates a job when it is picked up from the queue.
func (t *FaxTracker) Begin(job *FaxJob) {
	direction := DirectionSend
	if job.Poll {
		direction = DirectionPoll
	}
	t.begin(job.UUID, job.CallUUID, direction, job.CalleeNumber, "", PhaseQueued)
}

// BeginReceive tracks an answered call. The call UUID doubles as job UUID.
func (t *FaxTracker) BeginReceive(callID uuid.UUID, modemName string) {
	t.begin(callID, callID, DirectionRecv, "", modemName, PhaseReceiving)
}

func (t *FaxTracker) begin(jobID, callID uuid.UUID, direction, number, modemName string, phase FaxPhase) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.byJob[jobID]
	if !ok {
		st = &FaxRunState{
			JobUUID:    jobID,
			Direction:  direction,
			EnqueuedAt: now,
		}
		t.byJob[jobID] = st
		t.running++
	}
	st.CallUUID = callID
	st.Number = number
	st.Modem = modemName
	st.Phase = phase
	st.UpdatedAt = now
	if phase == PhaseReceiving {
		st.StartedAt = now
	}
	if callID != uuid.Nil {
		t.byCall[callID] = jobID
	}
}

// MarkAttempt stamps the start of an attempt.
func (t *FaxTracker) MarkAttempt(jobID, callID uuid.UUID, attempt, maxAttempts int, modemName string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.byJob[jobID]; ok {
		if st.CallUUID != uuid.Nil {
			delete(t.byCall, st.CallUUID)
		}
		st.CallUUID = callID
		st.Attempt = attempt
		st.MaxAttempts = maxAttempts
		st.Modem = modemName
		st.Phase = PhaseAttempt
		st.StartedAt = now
		st.UpdatedAt = now
		t.byCall[callID] = jobID
	}
}

// MarkResult captures the outcome of an attempt (success or not).
func (t *FaxTracker) MarkResult(jobID uuid.UUID, success bool, returned string, lastErr error, res *gofaxlib.FaxResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.byJob[jobID]; ok {
		st.LastResult = returned
		st.LastError = ""
		if lastErr != nil {
			st.LastError = lastErr.Error()
		}
		st.ResultSuccess = &success
		if res != nil {
			st.ResultSnapshot = res.Snapshot()
		}
		st.UpdatedAt = time.Now()
		// phase stays Attempt/Waiting until Complete()
	}
}

// MarkWaiting sets backoff/idle phase between attempts.
func (t *FaxTracker) MarkWaiting(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.byJob[jobID]; ok {
		st.Phase = PhaseWaiting
		st.UpdatedAt = time.Now()
	}
}

// Complete finalizes the job and forgets it.
func (t *FaxTracker) Complete(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.byJob[jobID]
	if !ok {
		return
	}
	if st.CallUUID != uuid.Nil {
		delete(t.byCall, st.CallUUID)
	}
	if t.running > 0 {
		t.running--
	}
	delete(t.byJob, jobID)
}

// ActiveCount returns number of non-DONE jobs.
func (t *FaxTracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Snapshot returns a shallow copy of all states.
func (t *FaxTracker) Snapshot() []*FaxRunState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*FaxRunState, 0, len(t.byJob))
	for _, st := range t.byJob {
		cp := *st
		out = append(out, &cp)
	}
	return out
}

// Get looks up a job by JobUUID.
func (t *FaxTracker) Get(jobID uuid.UUID) (*FaxRunState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.byJob[jobID]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

// FindJobByCall looks up the job of a session UUID.
func (t *FaxTracker) FindJobByCall(callID uuid.UUID) (uuid.UUID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.byCall[callID]
	return j, ok
}

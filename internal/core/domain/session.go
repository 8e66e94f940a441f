package domain

import "time"

// Snapshot is the read-only view of the session handed to renderers and subscribers.
type Snapshot struct {
	Generation uint64     `json:"generation"`
	Current    *Document  `json:"current,omitempty"`
	Recent     []Document `json:"recent"`
	Busy       bool       `json:"busy"`
	Error      string     `json:"error,omitempty"`
	Notice     string     `json:"notice,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type JournalAction string

const (
	JournalPollSucceeded       JournalAction = "poll_succeeded"
	JournalPollFailed          JournalAction = "poll_failed"
	JournalCorrectionAccepted  JournalAction = "correction_accepted"
	JournalCorrectionRejected  JournalAction = "correction_rejected"
	JournalSubmissionAccepted  JournalAction = "submission_accepted"
	JournalSubmissionRejected  JournalAction = "submission_rejected"
	JournalSubmissionDuplicate JournalAction = "submission_refused"
)

// JournalEntry records one operator-visible outcome for later diagnostics.
type JournalEntry struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Action     JournalAction `json:"action"`
	ActorID    string        `json:"actor_id"`
	Field      string        `json:"field,omitempty"`
	Value      string        `json:"value,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

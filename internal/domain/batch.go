package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusComplete   BatchStatus = "COMPLETE"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusComplete:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// ErrorStage identifies which phase of batch processing produced an error.
type ErrorStage string

const (
	ErrorStageSubmission   ErrorStage = "SUBMISSION"
	ErrorStageCallback     ErrorStage = "CALLBACK"
	ErrorStageNotification ErrorStage = "NOTIFICATION"
)

// BatchError is one entry in a batch's ordered error list.
type BatchError struct {
	Stage   ErrorStage `json:"stage"`
	Item    string     `json:"item,omitempty"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// BatchErrorList is stored as a single JSONB column on the batch row.
type BatchErrorList []BatchError

func (l BatchErrorList) Value() (driver.Value, error) {
	if l == nil {
		l = BatchErrorList{}
	}
	return json.Marshal(l)
}

func (l *BatchErrorList) Scan(value any) error {
	if value == nil {
		*l = BatchErrorList{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into BatchErrorList", value)
	}

	if len(raw) == 0 {
		*l = BatchErrorList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// SubmissionDiagnostics keeps safe provider call metadata for visibility.
type SubmissionDiagnostics struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// SubmissionRecord captures the outcome of one identifier submission.
type SubmissionRecord struct {
	Item        string                 `json:"item"`
	Success     bool                   `json:"success"`
	RequestID   string                 `json:"requestId,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Diagnostics *SubmissionDiagnostics `json:"diagnostics,omitempty"`
}

// SubmissionList is stored as a single JSONB column on the batch row.
type SubmissionList []SubmissionRecord

func (l SubmissionList) Value() (driver.Value, error) {
	if l == nil {
		l = SubmissionList{}
	}
	return json.Marshal(l)
}

func (l *SubmissionList) Scan(value any) error {
	if value == nil {
		*l = SubmissionList{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SubmissionList", value)
	}

	if len(raw) == 0 {
		*l = SubmissionList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Batch tracks one user-submitted collection of identifiers through
// submission and callback completion.
//
// Invariants: Pending only ever shrinks after registration, Received never
// exceeds TotalItems, and Status flips to COMPLETE exactly once, when
// Pending empties.
type Batch struct {
	ID          string
	Email       string
	TotalItems  int
	Pending     []string
	Received    int
	Errors      BatchErrorList
	Submissions SubmissionList
	Status      BatchStatus
	OriginalCSV []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *Batch) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: batch is required", ErrValidation)
	}
	if strings.TrimSpace(b.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if b.TotalItems < 1 {
		return fmt.Errorf("%w: batch must include at least one identifier", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}

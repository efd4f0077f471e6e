// -----------------------------------------------------------------------
// Bulk Operation - Remote job state as reported by the admin API
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// JobStatus is the status of a remote bulk operation. The authoritative value
// always comes from the latest status query; it is never inferred locally.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "CREATED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCanceling JobStatus = "CANCELING"
	JobStatusCanceled  JobStatus = "CANCELED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusExpired   JobStatus = "EXPIRED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Count decodes the platform's unsigned count fields, which arrive as JSON
// strings on current API versions and as bare numbers on older ones.
type Count int64

// UnmarshalJSON accepts "2", 2 and null.
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", s, err)
	}
	*c = Count(n)
	return nil
}

// BulkJob mirrors the BulkOperation node returned by the admin API.
// The ID is the job handle: the only durable checkpoint of an in-flight
// export, and the sole means of resuming one after a crash.
type BulkJob struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	ErrorCode      string    `json:"errorCode"`
	CreatedAt      string    `json:"createdAt"`
	ObjectCount    Count     `json:"objectCount"`
	FileSize       Count     `json:"fileSize"`
	URL            string    `json:"url"`
	PartialDataURL string    `json:"partialDataUrl"`
}

// OutcomeKind tags the result of one poll cycle. Exactly one kind holds
// per tick.
type OutcomeKind string

const (
	// OutcomeContinue means the job has not reached a terminal state yet.
	OutcomeContinue OutcomeKind = "continue"
	// OutcomeSuccess means the job completed with a downloadable result file.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeEmpty means the job completed but exported zero objects.
	// This is a valid terminal outcome, not an error.
	OutcomeEmpty OutcomeKind = "empty"
	// OutcomeFatal means a terminal failure was classified; Err carries it.
	OutcomeFatal OutcomeKind = "fatal"
)

// Outcome is the tagged result of one poll cycle.
type Outcome struct {
	Kind        OutcomeKind
	DownloadURL string
	ObjectCount int64
	Err         error
}

// ContinueOutcome signals another poll cycle is needed.
func ContinueOutcome() Outcome {
	return Outcome{Kind: OutcomeContinue}
}

// SuccessOutcome signals completion with a downloadable result file.
func SuccessOutcome(downloadURL string, objectCount int64) Outcome {
	return Outcome{Kind: OutcomeSuccess, DownloadURL: downloadURL, ObjectCount: objectCount}
}

// EmptyOutcome signals completion with zero exported objects.
func EmptyOutcome() Outcome {
	return Outcome{Kind: OutcomeEmpty}
}

// FatalOutcome signals a classified terminal failure.
func FatalOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// Terminal reports whether the outcome ends the polling loop.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeContinue
}

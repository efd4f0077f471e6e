// Package jobs drives the remote bulk operation lifecycle: submission of the
// export mutation and the poll loop that classifies every status response
// into continue, success, empty or fatal.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/models"
)

// Executor issues one GraphQL operation against the admin endpoint.
type Executor interface {
	Execute(ctx context.Context, query string) (json.RawMessage, error)
}

const runQueryMutation = `mutation {
  bulkOperationRunQuery(
    query: """
%s
"""
  ) {
    bulkOperation {
      id
      status
    }
    userErrors {
      field
      message
    }
  }
}`

// UserError is one platform-reported user error from the submission payload.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type runQueryPayload struct {
	BulkOperation *models.BulkJob `json:"bulkOperation"`
	UserErrors    []UserError     `json:"userErrors"`
}

// Submitter sends the bulk operation submission mutation. There are no
// retries at this layer: every failure class terminates the export.
type Submitter struct {
	client Executor
	logger arbor.ILogger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(client Executor, logger arbor.ILogger) *Submitter {
	return &Submitter{
		client: client,
		logger: logger,
	}
}

// Submit runs the submission mutation for the formatted query text and
// returns the job handle. Failure classes:
//   - *models.RemoteUserError: the mutation reported user errors
//   - *models.ProtocolError: the submission payload shape is missing
//   - *models.JobCreationError: the created job is already in a failure state
//   - models.ErrMissingJobID: payload present but no identifier returned
func (s *Submitter) Submit(ctx context.Context, queryText string) (string, error) {
	data, err := s.client.Execute(ctx, fmt.Sprintf(runQueryMutation, queryText))
	if err != nil {
		return "", err
	}

	var envelope struct {
		BulkOperationRunQuery *runQueryPayload `json:"bulkOperationRunQuery"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", &models.ProtocolError{Reason: fmt.Sprintf("cannot parse submission payload: %v", err)}
	}
	payload := envelope.BulkOperationRunQuery
	if payload == nil {
		return "", &models.ProtocolError{Reason: "response is missing the bulkOperationRunQuery payload"}
	}

	if len(payload.UserErrors) > 0 {
		messages := make([]string, 0, len(payload.UserErrors))
		for _, e := range payload.UserErrors {
			messages = append(messages, e.Message)
		}
		return "", &models.RemoteUserError{Messages: messages}
	}

	if payload.BulkOperation == nil {
		return "", models.ErrMissingJobID
	}
	if payload.BulkOperation.Status == models.JobStatusFailed {
		return "", &models.JobCreationError{Status: payload.BulkOperation.Status}
	}
	if payload.BulkOperation.ID == "" {
		return "", models.ErrMissingJobID
	}

	s.logger.Info().
		Str("job_id", payload.BulkOperation.ID).
		Str("status", string(payload.BulkOperation.Status)).
		Msg("Bulk operation created")

	return payload.BulkOperation.ID, nil
}

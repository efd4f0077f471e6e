package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/models"
)

// DefaultInterval is the delay between status polls.
const DefaultInterval = 20 * time.Second

const statusQueryFormat = `query {
  node(id: %q) {
    ... on BulkOperation {
      id
      status
      errorCode
      createdAt
      objectCount
      fileSize
      url
      partialDataUrl
    }
  }
}`

// Sleeper suspends between polls. Injected so the loop is testable against a
// scripted response sequence without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

func waitInterval(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller repeatedly queries the status of one bulk operation until it
// classifies a terminal outcome. The loop is unbounded: only the remote
// platform (or the caller's context) ends it. No two ticks run concurrently
// for the same handle.
type Poller struct {
	client   Executor
	interval time.Duration
	sleep    Sleeper
	logger   arbor.ILogger
}

// PollerOption configures the Poller.
type PollerOption func(*Poller)

// WithSleeper replaces the real inter-poll delay.
func WithSleeper(sleep Sleeper) PollerOption {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// NewPoller creates a Poller. A non-positive interval falls back to
// DefaultInterval.
func NewPoller(client Executor, interval time.Duration, logger arbor.ILogger, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		client:   client,
		interval: interval,
		sleep:    waitInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick performs one poll cycle: a single status query followed by
// classification. Classification order:
//  1. top-level GraphQL errors are fatal
//  2. a missing or wrong-kind node payload is a protocol fault
//  3. a nonzero error code fails the job
//  4. COMPLETED with zero objects is an empty result, with objects a success
//  5. anything else continues
func (p *Poller) Tick(ctx context.Context, handle string) models.Outcome {
	data, err := p.client.Execute(ctx, fmt.Sprintf(statusQueryFormat, handle))
	if err != nil {
		return models.FatalOutcome(err)
	}

	var envelope struct {
		Node json.RawMessage `json:"node"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.FatalOutcome(&models.ProtocolError{Reason: fmt.Sprintf("cannot parse status payload: %v", err)})
	}
	if len(envelope.Node) == 0 || string(envelope.Node) == "null" {
		return models.FatalOutcome(&models.ProtocolError{Reason: "status response has no bulk operation node"})
	}

	var job models.BulkJob
	if err := json.Unmarshal(envelope.Node, &job); err != nil {
		return models.FatalOutcome(&models.ProtocolError{Reason: fmt.Sprintf("cannot parse bulk operation node: %v", err)})
	}
	if job.Status == "" {
		return models.FatalOutcome(&models.ProtocolError{Reason: "node is not a bulk operation"})
	}

	if job.ErrorCode != "" {
		return models.FatalOutcome(&models.JobFailedError{Code: job.ErrorCode, Status: job.Status})
	}

	if job.Status == models.JobStatusCompleted {
		if job.ObjectCount == 0 {
			return models.EmptyOutcome()
		}
		if job.URL == "" {
			return models.FatalOutcome(&models.ProtocolError{Reason: "completed bulk operation has no download url"})
		}
		return models.SuccessOutcome(job.URL, int64(job.ObjectCount))
	}

	p.logger.Debug().
		Str("job_id", handle).
		Str("status", string(job.Status)).
		Msg("Bulk operation still in flight")

	return models.ContinueOutcome()
}

// Poll drives Tick at the configured interval until a terminal outcome.
func (p *Poller) Poll(ctx context.Context, handle string) models.Outcome {
	for {
		outcome := p.Tick(ctx, handle)
		if outcome.Terminal() {
			return outcome
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return models.FatalOutcome(err)
		}
	}
}

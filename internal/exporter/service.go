// Package exporter composes the full bulk export pipeline: cache lookup,
// query formatting, job submission, status polling, result streaming and
// cache persistence. Run and Resume are its two entry points.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/cache"
	"github.com/ternarybob/effluo/internal/client"
	"github.com/ternarybob/effluo/internal/common"
	"github.com/ternarybob/effluo/internal/graphql"
	"github.com/ternarybob/effluo/internal/jobs"
	"github.com/ternarybob/effluo/internal/models"
	"github.com/ternarybob/effluo/internal/stream"
)

// Service orchestrates bulk exports. One invocation executes single-flight:
// every remote call and inter-poll delay blocks until done, bounded only by
// the caller's context.
type Service struct {
	store      cache.Store
	interval   time.Duration
	endpoint   string
	httpClient *http.Client
	sleep      jobs.Sleeper
	logger     arbor.ILogger
	validate   *validator.Validate
}

// Option configures the Service.
type Option func(*Service)

// WithCache sets the result cache backend. Default is the disabled cache.
func WithCache(store cache.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithInterval sets the delay between status polls.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.interval = interval
	}
}

// WithEndpoint overrides the derived admin endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Service) {
		s.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for GraphQL calls and result
// downloads.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Service) {
		s.httpClient = httpClient
	}
}

// WithSleeper replaces the real inter-poll delay.
func WithSleeper(sleep jobs.Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an export service.
func NewService(opts ...Option) *Service {
	s := &Service{
		store:    cache.Noop{},
		interval: jobs.DefaultInterval,
		logger:   common.GetLogger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig builds a service, including its cache backend, from loaded
// configuration.
func NewFromConfig(cfg *common.Config, logger arbor.ILogger) (*Service, error) {
	opts := []Option{WithLogger(logger)}

	interval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}
	if interval > 0 {
		opts = append(opts, WithInterval(interval))
	}

	if cfg.Cache.Enabled {
		var store cache.Store
		switch cfg.Cache.Backend {
		case "", "filesystem":
			store, err = cache.NewFileStore(cfg.Cache.Dir, logger)
		case "memory":
			store = cache.NewMemStore()
		case "badger":
			store, err = cache.NewBadgerStore(cfg.Cache.Dir, logger)
		default:
			err = fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCache(store))
	}

	return NewService(opts...), nil
}

// Close releases the cache backend.
func (s *Service) Close() error {
	return s.store.Close()
}

// Run executes a full export: cache lookup, then on a miss the format,
// submit, poll, stream, cache-store pipeline. A cache hit returns without
// any network call. An empty terminal result returns an empty sequence and
// writes nothing to the cache, so a later identical call runs the full
// pipeline again.
func (s *Service) Run(ctx context.Context, req *models.ExportRequest) ([]models.Record, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	resolved := s.resolve(req)
	runID := uuid.New().String()
	key := cache.Key(resolved)

	if records, ok := s.lookup(runID, key); ok {
		return records, nil
	}

	queryText, err := graphql.Format(resolved.Query, resolved.Variables)
	if err != nil {
		return nil, err
	}

	cl := s.newClient(resolved)
	handle, err := jobs.NewSubmitter(cl, s.logger).Submit(ctx, queryText)
	if err != nil {
		return nil, err
	}

	// The handle is the sole recovery checkpoint: an interrupted run can be
	// resumed with it instead of submitting a duplicate job.
	common.SetActiveJob(handle)
	s.logger.Info().
		Str("run_id", runID).
		Str("job_id", handle).
		Msg("Export job submitted; keep the job id to resume an interrupted run")

	return s.finish(ctx, runID, cl, handle, key)
}

// Resume re-enters the pipeline at the polling stage with a caller-supplied
// job handle, skipping formatting and submission entirely. This is the sole
// recovery path after a crash. When the request carries the original query,
// a successful result is still written to the cache under its key.
func (s *Service) Resume(ctx context.Context, req *models.ExportRequest, handle string) ([]models.Record, error) {
	if err := s.validateResume(req, handle); err != nil {
		return nil, err
	}

	resolved := s.resolve(req)
	runID := uuid.New().String()

	key := ""
	if resolved.Query != "" {
		key = cache.Key(resolved)
		if records, ok := s.lookup(runID, key); ok {
			return records, nil
		}
	}

	common.SetActiveJob(handle)
	s.logger.Info().
		Str("run_id", runID).
		Str("job_id", handle).
		Msg("Resuming export job")

	return s.finish(ctx, runID, s.newClient(resolved), handle, key)
}

// finish polls the job to a terminal outcome and materializes the result.
func (s *Service) finish(ctx context.Context, runID string, cl *client.Client, handle, key string) ([]models.Record, error) {
	poller := jobs.NewPoller(cl, s.interval, s.logger, s.pollerOpts()...)
	outcome := poller.Poll(ctx, handle)

	switch outcome.Kind {
	case models.OutcomeEmpty:
		common.SetActiveJob("")
		s.logger.Info().
			Str("run_id", runID).
			Str("job_id", handle).
			Msg("Export completed with zero objects")
		return []models.Record{}, nil

	case models.OutcomeFatal:
		return nil, outcome.Err

	case models.OutcomeSuccess:
		records, err := s.newStreamer().Fetch(ctx, outcome.DownloadURL)
		if err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("run_id", runID).
			Str("job_id", handle).
			Int("records", len(records)).
			Msg("Export completed")

		s.persist(key, records)
		common.SetActiveJob("")
		return records, nil

	default:
		return nil, &models.ProtocolError{Reason: fmt.Sprintf("poller returned non-terminal outcome %q", outcome.Kind)}
	}
}

// lookup consults the cache. It never performs network access and failures
// degrade to a miss.
func (s *Service) lookup(runID, key string) ([]models.Record, bool) {
	blob, ok, err := s.store.Get(key)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("cache_key", key).
			Msg("Cache read failed; running full export")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var records []models.Record
	if err := json.Unmarshal(blob, &records); err != nil {
		s.logger.Warn().
			Err(err).
			Str("cache_key", key).
			Msg("Corrupt cache entry ignored; running full export")
		return nil, false
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("cache_key", key).
		Int("records", len(records)).
		Msg("Export served from cache")

	return records, true
}

// persist writes a successful result under key. Cache writes are best
// effort: a failed write surfaces in the log but not to the caller.
func (s *Service) persist(key string, records []models.Record) {
	if key == "" {
		return
	}
	blob, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to serialize result for caching")
		return
	}
	if err := s.store.Put(key, blob); err != nil {
		s.logger.Warn().
			Err(err).
			Str("cache_key", key).
			Msg("Failed to write cache entry")
	}
}

func (s *Service) validateRequest(req *models.ExportRequest) error {
	if req == nil {
		return &models.ValidationError{Field: "request", Reason: "is required"}
	}
	if err := s.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return &models.ValidationError{Field: verrs[0].Field(), Reason: "is required"}
		}
		return err
	}
	return nil
}

func (s *Service) validateResume(req *models.ExportRequest, handle string) error {
	if req == nil {
		return &models.ValidationError{Field: "request", Reason: "is required"}
	}
	if req.StoreName == "" {
		return &models.ValidationError{Field: "StoreName", Reason: "is required"}
	}
	if req.AccessToken == "" {
		return &models.ValidationError{Field: "AccessToken", Reason: "is required"}
	}
	if handle == "" {
		return &models.ValidationError{Field: "JobHandle", Reason: "is required"}
	}
	return nil
}

// resolve pins the API version so the cache key and the endpoint agree.
func (s *Service) resolve(req *models.ExportRequest) *models.ExportRequest {
	resolved := *req
	if resolved.APIVersion == "" {
		resolved.APIVersion = client.DefaultAPIVersion
	}
	return &resolved
}

func (s *Service) newClient(req *models.ExportRequest) *client.Client {
	opts := []client.Option{client.WithLogger(s.logger)}
	if s.endpoint != "" {
		opts = append(opts, client.WithEndpoint(s.endpoint))
	}
	if s.httpClient != nil {
		opts = append(opts, client.WithHTTPClient(s.httpClient))
	}
	return client.New(req.StoreName, req.APIVersion, req.AccessToken, opts...)
}

func (s *Service) newStreamer() *stream.Streamer {
	opts := []stream.Option{}
	if s.httpClient != nil {
		opts = append(opts, stream.WithHTTPClient(s.httpClient))
	}
	return stream.NewStreamer(s.logger, opts...)
}

func (s *Service) pollerOpts() []jobs.PollerOption {
	if s.sleep == nil {
		return nil
	}
	return []jobs.PollerOption{jobs.WithSleeper(s.sleep)}
}

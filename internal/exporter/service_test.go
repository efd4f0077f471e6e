package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/cache"
	"github.com/ternarybob/effluo/internal/jobs"
	"github.com/ternarybob/effluo/internal/models"
)

const testHandle = "gid://shopify/BulkOperation/42"

// fakeAdmin scripts the admin endpoint and the result download endpoint,
// counting every call so the tests can assert exact network behavior.
type fakeAdmin struct {
	mu          sync.Mutex
	submitCalls int
	statusCalls int
	streamCalls int

	statuses   []string // data payloads replayed per status query
	streamBody string

	graphql  *httptest.Server
	download *httptest.Server
}

func newFakeAdmin(t *testing.T, statuses []string, streamBody string) *fakeAdmin {
	t.Helper()

	f := &fakeAdmin{statuses: statuses, streamBody: streamBody}

	f.download = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.streamCalls++
		f.mu.Unlock()
		w.Write([]byte(f.streamBody))
	}))
	t.Cleanup(f.download.Close)

	f.graphql = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		defer f.mu.Unlock()

		if strings.Contains(body.Query, "bulkOperationRunQuery") {
			f.submitCalls++
			fmt.Fprintf(w, `{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":%q,"status":"CREATED"},"userErrors":[]}}}`, testHandle)
			return
		}

		f.statusCalls++
		require.NotEmpty(t, f.statuses, "status query after script exhausted")
		payload := f.statuses[0]
		f.statuses = f.statuses[1:]
		fmt.Fprintf(w, `{"data":%s}`, payload)
	}))
	t.Cleanup(f.graphql.Close)

	return f
}

func (f *fakeAdmin) counts() (submit, status, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.statusCalls, f.streamCalls
}

func (f *fakeAdmin) statusRunning() string {
	return fmt.Sprintf(`{"node":{"id":%q,"status":"RUNNING","objectCount":"0"}}`, testHandle)
}

func (f *fakeAdmin) statusCompleted(objectCount int) string {
	if objectCount == 0 {
		return fmt.Sprintf(`{"node":{"id":%q,"status":"COMPLETED","objectCount":"0"}}`, testHandle)
	}
	return fmt.Sprintf(`{"node":{"id":%q,"status":"COMPLETED","objectCount":"%d","url":%q}}`,
		testHandle, objectCount, f.download.URL)
}

func (f *fakeAdmin) statusFailed(code string) string {
	return fmt.Sprintf(`{"node":{"id":%q,"status":"FAILED","errorCode":%q,"objectCount":"0"}}`, testHandle, code)
}

func instantSleeper(ctx context.Context, d time.Duration) error { return nil }

func newTestService(f *fakeAdmin, store cache.Store) *Service {
	opts := []Option{
		WithEndpoint(f.graphql.URL),
		WithInterval(time.Millisecond),
		WithSleeper(jobs.Sleeper(instantSleeper)),
		WithLogger(arbor.NewLogger()),
	}
	if store != nil {
		opts = append(opts, WithCache(store))
	}
	return NewService(opts...)
}

func testRequest() *models.ExportRequest {
	return &models.ExportRequest{
		StoreName:   "shop1",
		AccessToken: "secret",
		Query:       "{ products { edges { node { id } } } }",
	}
}

func ids(records []models.Record) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r["id"].(float64))
	}
	return out
}

func TestRun_FullPipeline(t *testing.T) {
	f := newFakeAdmin(t, nil, "{\"id\":1}\n{\"id\":2}\n")
	f.statuses = []string{f.statusRunning(), f.statusRunning(), f.statusCompleted(2)}

	service := newTestService(f, nil)
	records, err := service.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2}, ids(records))

	submit, status, stream := f.counts()
	assert.Equal(t, 1, submit, "submit calls")
	assert.Equal(t, 3, status, "status calls")
	assert.Equal(t, 1, stream, "stream fetches")
}

func TestRun_SecondCallServedFromCache(t *testing.T) {
	f := newFakeAdmin(t, nil, "{\"id\":1}\n{\"id\":2}\n")
	f.statuses = []string{f.statusCompleted(2)}

	store := cache.NewMemStore()
	service := newTestService(f, store)

	first, err := service.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, 1, store.Len(), "success must populate the cache")

	submit, status, stream := f.counts()

	second, err := service.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached result must equal the original")

	submit2, status2, stream2 := f.counts()
	assert.Equal(t, submit, submit2, "cache hit must make zero submit calls")
	assert.Equal(t, status, status2, "cache hit must make zero status calls")
	assert.Equal(t, stream, stream2, "cache hit must make zero stream fetches")
}

func TestRun_JobFailedCarriesErrorCode(t *testing.T) {
	f := newFakeAdmin(t, nil, "")
	f.statuses = []string{f.statusFailed("TIMEOUT")}

	service := newTestService(f, nil)
	_, err := service.Run(context.Background(), testRequest())

	var failed *models.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "TIMEOUT", failed.Code)
	assert.Contains(t, err.Error(), "TIMEOUT")
}

func TestRun_EmptyResultNotCached(t *testing.T) {
	f := newFakeAdmin(t, nil, "")
	f.statuses = []string{f.statusCompleted(0), f.statusCompleted(0)}

	store := cache.NewMemStore()
	service := newTestService(f, store)

	records, err := service.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records, "empty result is a sequence, not nil")
	assert.Equal(t, 0, store.Len(), "empty result must not populate the cache")

	// A repeated identical call still performs the full network round trip.
	_, err = service.Run(context.Background(), testRequest())
	require.NoError(t, err)

	submit, status, _ := f.counts()
	assert.Equal(t, 2, submit)
	assert.Equal(t, 2, status)
}

func TestResume_SkipsSubmission(t *testing.T) {
	f := newFakeAdmin(t, nil, "{\"id\":9}\n")
	f.statuses = []string{f.statusCompleted(1)}

	service := newTestService(f, nil)
	records, err := service.Resume(context.Background(), testRequest(), "gid://shopify/BulkOperation/999")
	require.NoError(t, err)

	assert.Equal(t, []float64{9}, ids(records))

	submit, status, stream := f.counts()
	assert.Equal(t, 0, submit, "resume must never submit")
	assert.Equal(t, 1, status)
	assert.Equal(t, 1, stream)
}

func TestRun_ValidatesRequiredInputs(t *testing.T) {
	service := NewService(WithLogger(arbor.NewLogger()))

	tests := []struct {
		name   string
		mutate func(*models.ExportRequest)
	}{
		{"missing store", func(r *models.ExportRequest) { r.StoreName = "" }},
		{"missing token", func(r *models.ExportRequest) { r.AccessToken = "" }},
		{"missing query", func(r *models.ExportRequest) { r.Query = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(req)

			_, err := service.Run(context.Background(), req)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestResume_ValidatesHandle(t *testing.T) {
	service := NewService(WithLogger(arbor.NewLogger()))

	_, err := service.Resume(context.Background(), testRequest(), "")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRun_RemoteUserErrorFromSubmission(t *testing.T) {
	graphql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"bulkOperationRunQuery":{"bulkOperation":null,"userErrors":[{"field":["query"],"message":"Bulk query is not valid"}]}}}`))
	}))
	defer graphql.Close()

	service := NewService(
		WithEndpoint(graphql.URL),
		WithLogger(arbor.NewLogger()),
	)

	_, err := service.Run(context.Background(), testRequest())
	var userErr *models.RemoteUserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "Bulk query is not valid", userErr.Error())
}

func TestRun_StreamFaultPropagatesWithoutCacheWrite(t *testing.T) {
	f := newFakeAdmin(t, nil, "{\"id\":1}\nnot json\n")
	f.statuses = []string{f.statusCompleted(2)}

	store := cache.NewMemStore()
	service := newTestService(f, store)

	_, err := service.Run(context.Background(), testRequest())
	var streamErr *models.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, 0, store.Len(), "failed stream must not populate the cache")
}

func TestRun_DisabledCacheTouchesNothing(t *testing.T) {
	f := newFakeAdmin(t, nil, "{\"id\":1}\n")
	f.statuses = []string{f.statusCompleted(1), f.statusCompleted(1)}

	// Default service cache is the disabled no-op store.
	service := newTestService(f, nil)

	for i := 0; i < 2; i++ {
		_, err := service.Run(context.Background(), testRequest())
		require.NoError(t, err)
	}

	submit, _, stream := f.counts()
	assert.Equal(t, 2, submit, "disabled cache never short-circuits")
	assert.Equal(t, 2, stream)
}

func TestRun_FatalTransportError(t *testing.T) {
	service := NewService(
		WithEndpoint("http://127.0.0.1:1"),
		WithLogger(arbor.NewLogger()),
	)

	_, err := service.Run(context.Background(), testRequest())
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}

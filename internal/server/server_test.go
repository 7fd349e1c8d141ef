package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmill/taskmill/internal/server/middleware"
	"github.com/taskmill/taskmill/pkg/job"
	"github.com/taskmill/taskmill/pkg/queue"
	"github.com/taskmill/taskmill/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *queue.Queue) {
	t.Helper()
	q, err := queue.New(store.Nop{}, queue.Options{})
	require.NoError(t, err)
	return New("127.0.0.1", 0, q, Options{}), q
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, "GET", "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeErrorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, "PUT", "/v1/jobs", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeErrorCode(t, rec))
}

func TestSubmitJob(t *testing.T) {
	srv, q := newTestServer(t)

	rec := doRequest(t, srv, "POST", "/v1/jobs", map[string]any{
		"name":     "noop",
		"input":    map[string]any{"url": "https://example.com"},
		"priority": 5,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	j, err := q.Get(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "noop", j.Name)
	assert.Equal(t, 5, j.Priority)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, 3, j.MaxRetries, "omitted max_retries uses the queue default")
}

func TestSubmitJobValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("missing input", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/v1/jobs", map[string]any{"name": "noop"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeErrorCode(t, rec))
	})

	t.Run("negative max_retries", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/v1/jobs", map[string]any{
			"input":       map[string]any{},
			"max_retries": -1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/jobs", bytes.NewReader([]byte("{broken")))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetJob(t *testing.T) {
	srv, q := newTestServer(t)
	id, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var j job.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j))
		assert.Equal(t, id, j.ID)
		assert.Equal(t, job.StatusPending, j.Status)
	})

	t.Run("missing", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeErrorCode(t, rec))
	})
}

func TestListJobs(t *testing.T) {
	srv, q := newTestServer(t)
	for i := 0; i < 3; i++ {
		_, err := q.SubmitNamed("noop", json.RawMessage(`{}`), i, -1)
		require.NoError(t, err)
	}
	cancelled, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
	require.NoError(t, err)
	require.NoError(t, q.Cancel(cancelled))

	type listResponse struct {
		Jobs  []job.Job `json:"jobs"`
		Count int       `json:"count"`
	}

	t.Run("all", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 4, resp.Count)
	})

	t.Run("status filter", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs?status=cancelled", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp listResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, cancelled, resp.Jobs[0].ID)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeErrorCode(t, rec))
	})

	t.Run("empty bucket is an empty list", func(t *testing.T) {
		rec := doRequest(t, srv, "GET", "/v1/jobs?status=failed", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"jobs":[]`)
	})
}

func TestCancelJob(t *testing.T) {
	srv, q := newTestServer(t)

	t.Run("pending job cancels", func(t *testing.T) {
		id, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
		require.NoError(t, err)

		rec := doRequest(t, srv, "DELETE", "/v1/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		j, err := q.Get(id)
		require.NoError(t, err)
		assert.Equal(t, job.StatusCancelled, j.Status)
	})

	t.Run("running job conflicts", func(t *testing.T) {
		id, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
		require.NoError(t, err)
		_, err = q.Claim(id, "test-worker")
		require.NoError(t, err)

		rec := doRequest(t, srv, "DELETE", "/v1/jobs/"+id, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "JOB_RUNNING", decodeErrorCode(t, rec))
	})

	t.Run("missing job", func(t *testing.T) {
		rec := doRequest(t, srv, "DELETE", "/v1/jobs/absent", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestQueueStatus(t *testing.T) {
	srv, q := newTestServer(t)
	for i := 0; i < 2; i++ {
		_, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
		require.NoError(t, err)
	}

	rec := doRequest(t, srv, "GET", "/v1/queue/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts queue.Counts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 2, counts.Pending)
	assert.Equal(t, 2, counts.Total)
}

func TestQueueClear(t *testing.T) {
	srv, q := newTestServer(t)

	complete := func(t *testing.T) {
		t.Helper()
		id, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
		require.NoError(t, err)
		_, err = q.Claim(id, "w")
		require.NoError(t, err)
		require.NoError(t, q.Complete(id, nil))
	}

	t.Run("defaults to completed bucket", func(t *testing.T) {
		complete(t)
		complete(t)

		rec := doRequest(t, srv, "POST", "/v1/queue/clear", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp["bucket"])
		assert.Equal(t, float64(2), resp["removed"])
	})

	t.Run("all", func(t *testing.T) {
		complete(t)
		_, err := q.SubmitNamed("noop", json.RawMessage(`{}`), 0, -1)
		require.NoError(t, err)

		rec := doRequest(t, srv, "POST", "/v1/queue/clear?bucket=all", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, q.Status().Total)
	})

	t.Run("invalid bucket", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/v1/queue/clear?bucket=nope", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeErrorCode(t, rec))
	})
}

func TestRateLimitedServer(t *testing.T) {
	q, err := queue.New(store.Nop{}, queue.Options{})
	require.NoError(t, err)
	srv := New("127.0.0.1", 0, q, Options{RateLimit: 1, RateBurst: 3})

	codes := make(map[int]int)
	for i := 0; i < 10; i++ {
		rec := doRequest(t, srv, "GET", "/healthz", nil)
		codes[rec.Code]++
	}
	assert.Equal(t, 3, codes[http.StatusOK])
	assert.Equal(t, 7, codes[http.StatusTooManyRequests])
}

func TestSubmitManyThenList(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		rec := doRequest(t, srv, "POST", "/v1/jobs", map[string]any{
			"name":  "noop",
			"input": map[string]any{"n": i},
		})
		require.Equal(t, http.StatusCreated, rec.Code, "submit %d", i)
	}

	rec := doRequest(t, srv, "GET", fmt.Sprintf("/v1/jobs?status=%s", job.StatusPending), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Count)
}

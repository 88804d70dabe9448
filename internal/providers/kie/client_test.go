package kie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bananabot/internal/infra"
)

func newTestServer(t *testing.T, states []string, result string) (*httptest.Server, *atomic.Int32, *map[string]any) {
	t.Helper()
	var polls atomic.Int32
	created := map[string]any{}
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-1"}}`))
	})
	mux.HandleFunc("/recordInfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "task-1", r.URL.Query().Get("taskId"))
		n := int(polls.Add(1)) - 1
		state := states[min(n, len(states)-1)]
		payload := map[string]any{"taskId": "task-1", "state": state}
		switch state {
		case "success":
			payload["resultJson"] = `{"resultUrls":["` + srv.URL + result + `"]}`
		case "fail":
			payload["failMsg"] = "content policy"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": payload})
	})
	mux.HandleFunc("/files/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls, &created
}

func newTestClient(url string) *Client {
	return NewClient(Options{
		APIKey:       "secret",
		BaseURL:      url,
		PollInterval: 5 * time.Millisecond,
		Logger:       infra.NopLogger(),
	})
}

func TestRunPollsUntilSuccessAndDownloads(t *testing.T) {
	srv, polls, created := newTestServer(t, []string{"waiting", "generating", "success"}, "/files/out.png")
	c := newTestClient(srv.URL)

	data, mime, url, err := c.Run(context.Background(), ModelGen, TaskInput{"prompt": "cat"})
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", mime)
	require.Equal(t, srv.URL+"/files/out.png", url)
	require.Equal(t, int32(3), polls.Load())
	require.Equal(t, ModelGen, (*created)["model"])
}

func TestRunFailedTask(t *testing.T) {
	srv, _, _ := newTestServer(t, []string{"fail"}, "")
	_, _, _, err := newTestClient(srv.URL).Run(context.Background(), ModelPro, TaskInput{"prompt": "x"})
	require.ErrorIs(t, err, ErrTaskFailed)
	require.Contains(t, err.Error(), "content policy")
}

func TestRunHonoursDeadline(t *testing.T) {
	srv, _, _ := newTestServer(t, []string{"waiting"}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, _, err := newTestClient(srv.URL).Run(ctx, ModelGen, TaskInput{"prompt": "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateTaskLogicError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":422,"msg":"prompt rejected"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateTask(context.Background(), ModelGen, TaskInput{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.Validation())
	require.Equal(t, 422, apiErr.Code)
}

func TestCreateTaskServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateTask(context.Background(), ModelGen, TaskInput{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.False(t, apiErr.Validation())
}

func TestMissingKey(t *testing.T) {
	c := NewClient(Options{Logger: infra.NopLogger()})
	require.False(t, c.HasCredentials())
	_, err := c.CreateTask(context.Background(), ModelGen, TaskInput{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestRecordResultURLs(t *testing.T) {
	urls, err := Record{ResultJSON: `{"resultUrls":["a","b"]}`}.ResultURLs()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, urls)

	_, err = Record{ResultJSON: `{`}.ResultURLs()
	require.Error(t, err)
}

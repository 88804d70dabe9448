// Package kie is a client for the Kie.ai jobs API: create a task, poll its
// record until it settles, then download the first result.
package kie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL      = "https://api.kie.ai/api/v1/jobs"
	DefaultPollInterval = 2 * time.Second

	ModelPro  = "nano-banana-pro"
	ModelEdit = "google/nano-banana-edit"
	ModelGen  = "google/nano-banana"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("kie: api key is required")
	// ErrTaskFailed is returned when a task settles in the fail state.
	ErrTaskFailed = errors.New("kie: task failed")
	// ErrNoResult is returned when a successful task lists no result URL.
	ErrNoResult = errors.New("kie: task returned no result")
)

// APIError is a non-success envelope or HTTP status from the API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 && e.Code != e.Status {
		return fmt.Sprintf("kie: status %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("kie: status %d: %s", e.Status, e.Message)
}

// Validation reports errors caused by the request content itself.
func (e *APIError) Validation() bool {
	code := e.Code
	if code == 0 {
		code = e.Status
	}
	return code == http.StatusBadRequest || code == http.StatusUnprocessableEntity
}

// Options configures the client.
type Options struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Client talks to the jobs API.
type Client struct {
	rc     *resty.Client
	dl     *resty.Client
	apiKey string
	poll   time.Duration
	logger zerolog.Logger
}

// TaskInput is the model-specific input object of createTask.
type TaskInput map[string]any

// Record is the recordInfo payload of a task.
type Record struct {
	TaskID     string `json:"taskId"`
	Model      string `json:"model"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

// Settled reports whether the task reached a terminal state.
func (r Record) Settled() bool {
	return r.State == "success" || r.State == "fail"
}

// ResultURLs decodes the result URLs of a successful task.
func (r Record) ResultURLs() ([]string, error) {
	if strings.TrimSpace(r.ResultJSON) == "" {
		return nil, nil
	}
	var payload struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(r.ResultJSON), &payload); err != nil {
		return nil, fmt.Errorf("kie: decode resultJson: %w", err)
	}
	return payload.ResultURLs, nil
}

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	apiKey := strings.TrimSpace(opts.APIKey)

	var rc, dl *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
		dl = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New().SetTimeout(30 * time.Second)
		dl = resty.New().SetTimeout(2 * time.Minute)
	}
	rc.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)

	return &Client{
		rc:     rc,
		dl:     dl,
		apiKey: apiKey,
		poll:   poll,
		logger: opts.Logger.With().Str("component", "kie").Logger(),
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// CreateTask submits a job and returns its task id.
func (c *Client) CreateTask(ctx context.Context, model string, input TaskInput) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	var out envelope[createTaskData]
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": model, "input": input}).
		SetResult(&out).
		Post("/createTask")
	if err != nil {
		return "", fmt.Errorf("kie: create task: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	if out.Code != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode(), Code: out.Code, Message: out.Msg}
	}
	if out.Data.TaskID == "" {
		return "", &APIError{Status: resp.StatusCode(), Code: out.Code, Message: "empty task id"}
	}
	return out.Data.TaskID, nil
}

// RecordInfo fetches the current record of a task.
func (c *Client) RecordInfo(ctx context.Context, taskID string) (*Record, error) {
	var out envelope[*Record]
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("taskId", taskID).
		SetResult(&out).
		Get("/recordInfo")
	if err != nil {
		return nil, fmt.Errorf("kie: record info: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	if out.Code != 0 && out.Code != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Code: out.Code, Message: out.Msg}
	}
	if out.Data == nil {
		return &Record{TaskID: taskID}, nil
	}
	return out.Data, nil
}

// Wait polls the task until it settles or ctx ends. A failed task returns
// ErrTaskFailed wrapped with the provider message.
func (c *Client) Wait(ctx context.Context, taskID string) (*Record, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		rec, err := c.RecordInfo(ctx, taskID)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Str("task_id", taskID).Msg("kie: poll failed")
		}
		if err == nil && rec.Settled() {
			if rec.State == "fail" {
				return rec, fmt.Errorf("%w: %s", ErrTaskFailed, strings.TrimSpace(rec.FailMsg))
			}
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("kie: waiting for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Download fetches a result URL and returns its bytes and content type.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.dl.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("kie: download result: %w", err)
	}
	if resp.IsError() {
		return nil, "", &APIError{Status: resp.StatusCode(), Message: "download failed"}
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// Run creates a task, waits for it and downloads the first result.
func (c *Client) Run(ctx context.Context, model string, input TaskInput) (data []byte, mime, url string, err error) {
	start := time.Now()
	taskID, err := c.CreateTask(ctx, model, input)
	if err != nil {
		return nil, "", "", err
	}
	c.logger.Info().Str("task_id", taskID).Str("model", model).Msg("kie: task created")

	rec, err := c.Wait(ctx, taskID)
	if err != nil {
		return nil, "", "", err
	}
	urls, err := rec.ResultURLs()
	if err != nil {
		return nil, "", "", err
	}
	if len(urls) == 0 || strings.TrimSpace(urls[0]) == "" {
		return nil, "", "", ErrNoResult
	}
	data, mime, err = c.Download(ctx, urls[0])
	if err != nil {
		return nil, "", "", err
	}
	c.logger.Info().Str("task_id", taskID).Dur("took", time.Since(start)).Int("bytes", len(data)).Msg("kie: task succeeded")
	return data, mime, urls[0], nil
}

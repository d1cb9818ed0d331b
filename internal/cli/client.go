package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RetryPolicy — политика повторов job.
type RetryPolicy struct {
	MaxRetries       *int     `json:"max_retries,omitempty"`
	BaseDelaySeconds *float64 `json:"base_delay_seconds,omitempty"`
	BackoffFactor    *float64 `json:"backoff_factor,omitempty"`
	MaxDelaySeconds  float64  `json:"max_delay_seconds,omitempty"`
}

// JobResponse — job из API.
type JobResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ScheduleExpr string         `json:"schedule_expr"`
	Timezone     string         `json:"timezone"`
	Payload      map[string]any `json:"payload"`
	RetryPolicy  *RetryPolicy   `json:"retry_policy,omitempty"`
	Status       string         `json:"status"`
	LastRun      string         `json:"last_run,omitempty"`
	NextRun      string         `json:"next_run,omitempty"`
	OwnerID      string         `json:"owner_id,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Logs        string `json:"logs,omitempty"`
	Error       string `json:"error,omitempty"`
	RetryCount  int    `json:"retry_count"`
	NextRetryAt string `json:"next_retry_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// RunNowResponse — ответ на ручной запуск.
type RunNowResponse struct {
	JobID string `json:"job_id"`
	RunID string `json:"run_id"`
}

// --- Request types ---

// CreateJobRequest — создание job.
type CreateJobRequest struct {
	Name         string         `json:"name"`
	ScheduleExpr string         `json:"schedule_expr"`
	Timezone     string         `json:"timezone,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	RetryPolicy  *RetryPolicy   `json:"retry_policy,omitempty"`
	OwnerID      string         `json:"owner_id,omitempty"`
	Status       string         `json:"status,omitempty"`
}

// UpdateJobRequest — частичное обновление job.
type UpdateJobRequest struct {
	Name         *string        `json:"name,omitempty"`
	ScheduleExpr *string        `json:"schedule_expr,omitempty"`
	Timezone     *string        `json:"timezone,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	RetryPolicy  *RetryPolicy   `json:"retry_policy,omitempty"`
	OwnerID      *string        `json:"owner_id,omitempty"`
	Status       *string        `json:"status,omitempty"`
}

// ListOpts — параметры фильтрации и пагинации.
type ListOpts struct {
	Status  string
	OwnerID string
	Page    int
	Size    int
}

func (o ListOpts) values() url.Values {
	params := url.Values{}
	if o.Status != "" {
		params.Set("status", o.Status)
	}
	if o.OwnerID != "" {
		params.Set("owner_id", o.OwnerID)
	}
	if o.Page > 0 {
		params.Set("page", strconv.Itoa(o.Page))
	}
	if o.Size > 0 {
		params.Set("size", strconv.Itoa(o.Size))
	}
	return params
}

// Page — страница результатов.
type Page struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type pageResponse struct {
	Data json.RawMessage `json:"data"`
	Page
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Tempo API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Пустой apiKey не отправляется.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Jobs ---

// ListJobs возвращает страницу jobs.
func (c *Client) ListJobs(opts ListOpts) ([]JobResponse, Page, error) {
	var jobs []JobResponse
	page, err := c.list("/api/v1/jobs", opts.values(), &jobs)
	return jobs, page, err
}

// CreateJob создаёт job.
func (c *Client) CreateJob(req CreateJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/jobs", req, &job)
	return &job, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// UpdateJob обновляет job.
func (c *Client) UpdateJob(id string, req UpdateJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.put("/api/v1/jobs/"+url.PathEscape(id), req, &job)
	return &job, err
}

// SetJobStatus меняет статус job (pause/resume).
func (c *Client) SetJobStatus(id, status string) (*JobResponse, error) {
	return c.UpdateJob(id, UpdateJobRequest{Status: &status})
}

// DeleteJob удаляет job.
func (c *Client) DeleteJob(id string) error {
	return c.delete("/api/v1/jobs/" + url.PathEscape(id))
}

// RunJob запускает job вне расписания.
func (c *Client) RunJob(id string) (*RunNowResponse, error) {
	var resp RunNowResponse
	err := c.post("/api/v1/jobs/"+url.PathEscape(id)+"/run", nil, &resp)
	return &resp, err
}

// --- Runs ---

// ListRuns возвращает историю runs job.
func (c *Client) ListRuns(jobID string, opts ListOpts) ([]RunResponse, Page, error) {
	var runs []RunResponse
	page, err := c.list("/api/v1/jobs/"+url.PathEscape(jobID)+"/runs", opts.values(), &runs)
	return runs, page, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) (Page, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return Page{}, err
	}

	var pr pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Page{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if err := json.Unmarshal(pr.Data, result); err != nil {
		return Page{}, fmt.Errorf("failed to decode data: %w", err)
	}
	return pr.Page, nil
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}

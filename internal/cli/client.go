package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID         string            `json:"id"`
	Spec       JobSpec           `json:"spec"`
	State      string            `json:"state"`
	Progress   float64           `json:"progress"`
	RetryCount int               `json:"retry_count"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	Error      string            `json:"error,omitempty"`
	Version    int64             `json:"version"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
	ExpiresAt  string            `json:"expires_at,omitempty"`
}

// JobDetailResponse — job с журналом и историей состояний.
type JobDetailResponse struct {
	JobResponse
	Logs    []string `json:"logs"`
	History []string `json:"history"`
}

// JobSpec — параметры генерации.
type JobSpec struct {
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode,omitempty"`
	NumScenes  int    `json:"num_scenes,omitempty"`
	ArtStyle   string `json:"art_style,omitempty"`
	MusicGenre string `json:"music_genre,omitempty"`
}

// UnitResponse — unit из API.
type UnitResponse struct {
	ID         string         `json:"id"`
	JobID      string         `json:"job_id"`
	Kind       string         `json:"kind"`
	Stage      string         `json:"stage"`
	Pass       int            `json:"pass"`
	Attempt    int            `json:"attempt"`
	Status     string         `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// InspectResponse — положение job в конечном автомате.
type InspectResponse struct {
	ID         string   `json:"id"`
	State      string   `json:"state"`
	History    []string `json:"history"`
	IsTerminal bool     `json:"is_terminal"`
	RetryCount int      `json:"retry_count"`
}

// --- Request types ---

// CreateJobRequest — создание job.
type CreateJobRequest struct {
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode,omitempty"`
	NumScenes  int    `json:"num_scenes,omitempty"`
	ArtStyle   string `json:"art_style,omitempty"`
	MusicGenre string `json:"music_genre,omitempty"`
}

// FailJobRequest — принудительный перевод в FAILED.
type FailJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ListJobsOpts — параметры фильтрации jobs.
type ListJobsOpts struct {
	State string
	Limit int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Clipline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL возвращает базовый адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Jobs ---

// ListJobs возвращает список jobs с фильтрацией.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// CreateJob создаёт новый job.
func (c *Client) CreateJob(req CreateJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/jobs", req, &job)
	return &job, err
}

// GetJob возвращает job по ID с журналом и историей.
func (c *Client) GetJob(id string) (*JobDetailResponse, error) {
	var job JobDetailResponse
	err := c.get("/api/v1/jobs/"+id, &job)
	return &job, err
}

// InspectJob возвращает положение job в конечном автомате.
func (c *Client) InspectJob(id string) (*InspectResponse, error) {
	var ins InspectResponse
	err := c.get("/api/v1/jobs/"+id+"/inspect", &ins)
	return &ins, err
}

// CancelJob отменяет job.
func (c *Client) CancelJob(id string) (*JobDetailResponse, error) {
	var job JobDetailResponse
	err := c.post("/api/v1/jobs/"+id+"/cancel", nil, &job)
	return &job, err
}

// FailJob принудительно переводит job в FAILED.
func (c *Client) FailJob(id, reason string) (*JobDetailResponse, error) {
	var job JobDetailResponse
	err := c.post("/api/v1/jobs/"+id+"/force-fail", FailJobRequest{Reason: reason}, &job)
	return &job, err
}

// DeleteJob удаляет завершённый job.
func (c *Client) DeleteJob(id string) error {
	return c.delete("/api/v1/jobs/" + id)
}

// ListUnits возвращает units для job.
func (c *Client) ListUnits(jobID string) ([]UnitResponse, error) {
	var units []UnitResponse
	err := c.list("/api/v1/jobs/"+jobID+"/units", nil, &units)
	return units, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
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

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

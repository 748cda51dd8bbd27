// Package client provides the API client for the sellerdesk HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/sellerdesk/sellerdesk/internal/api/middleware"
	"github.com/sellerdesk/sellerdesk/internal/api/v1/handlers"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
	"github.com/sellerdesk/sellerdesk/internal/settlement"
)

// DefaultBaseURL is the default API server address
const DefaultBaseURL = "http://localhost:8080"

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// UploadResult pairs the staged import with the job that materializes it
type UploadResult struct {
	Import models.SettlementImport `json:"import"`
	Job    models.Job              `json:"job"`
}

// Client is the interface for the API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Job Endpoints
	SubmitJob(ctx context.Context, req handlers.SubmitJobRequest) (models.Job, error)
	GetJob(ctx context.Context, jobID uint) (models.Job, error)
	ListJobs(ctx context.Context, status string, opts *models.ListOptions) ([]models.Job, error)
	PauseJob(ctx context.Context, jobID uint) (models.Job, error)
	ResumeJob(ctx context.Context, jobID uint) (models.Job, error)
	CancelJob(ctx context.Context, jobID uint) (models.Job, error)
	ForceStopJob(ctx context.Context, jobID uint) (models.Job, error)

	// Settlement Endpoints
	UploadSettlement(ctx context.Context, fileName string, csvData []byte) (UploadResult, error)
	GetImport(ctx context.Context, importID uint) (models.SettlementImport, error)
	ListImports(ctx context.Context, opts *models.ListOptions) ([]models.SettlementImport, error)
	ListImportRows(ctx context.Context, importID uint) ([]models.SettlementRow, error)
	RebuildImport(ctx context.Context, importID uint) (settlement.RebuildResult, error)
	RecomputeCOGS(ctx context.Context, importID *uint) (settlement.RecomputeResult, error)
	Audit(ctx context.Context, importID *uint) (settlement.Report, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration

	// TenantID is the workspace every request acts in
	TenantID uint

	// AuthToken is the bearer token presented to the access guard
	AuthToken string
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL   string
	timeout   time.Duration
	tenantID  uint
	authToken string
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &APIClient{
		baseURL:   opts.BaseURL,
		timeout:   opts.Timeout,
		tenantID:  opts.TenantID,
		authToken: opts.AuthToken,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.authToken != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.authToken)
	}
	if c.tenantID != 0 {
		agent.Set(middleware.TenantHeader, strconv.FormatUint(uint64(c.tenantID), 10))
	}

	if body != nil {
		agent.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the request and decodes the enveloped response data into v
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}
	if statusCode < 200 || statusCode >= 300 {
		var envelope struct {
			Slug  handlers.Slug `json:"slug"`
			Error string        `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
			return &fiber.Error{Code: statusCode, Message: envelope.Error}
		}
		return &fiber.Error{Code: statusCode, Message: string(body)}
	}
	if v == nil {
		return nil
	}

	var envelope struct {
		Slug handlers.Slug   `json:"slug"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if envelope.Data == nil {
		// Endpoints outside the v1 envelope (health) return the payload bare.
		return json.Unmarshal(body, v)
	}
	return json.Unmarshal(envelope.Data, v)
}

func (c *APIClient) get(ctx context.Context, endpoint string, v interface{}) error {
	agent, err := c.createAgent(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.doRequest(agent, v)
}

func (c *APIClient) post(ctx context.Context, endpoint string, body, v interface{}) error {
	agent, err := c.createAgent(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	return c.doRequest(agent, v)
}

// HealthCheck verifies the server is reachable
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.get(ctx, "/health", &out)
	return out, err
}

// SubmitJob admits a new job
func (c *APIClient) SubmitJob(ctx context.Context, req handlers.SubmitJobRequest) (models.Job, error) {
	var out models.Job
	err := c.post(ctx, "/api/v1/jobs", req, &out)
	return out, err
}

// GetJob retrieves one job with its progress
func (c *APIClient) GetJob(ctx context.Context, jobID uint) (models.Job, error) {
	var out models.Job
	err := c.get(ctx, fmt.Sprintf("/api/v1/jobs/%d", jobID), &out)
	return out, err
}

// ListJobs retrieves jobs, optionally filtered by status
func (c *APIClient) ListJobs(ctx context.Context, status string, opts *models.ListOptions) ([]models.Job, error) {
	endpoint := "/api/v1/jobs" + listQuery(status, opts)
	var out []models.Job
	err := c.get(ctx, endpoint, &out)
	return out, err
}

// PauseJob requests suspension of a running job
func (c *APIClient) PauseJob(ctx context.Context, jobID uint) (models.Job, error) {
	return c.jobControl(ctx, jobID, "pause")
}

// ResumeJob re-enters a paused job
func (c *APIClient) ResumeJob(ctx context.Context, jobID uint) (models.Job, error) {
	return c.jobControl(ctx, jobID, "resume")
}

// CancelJob requests termination of a job
func (c *APIClient) CancelJob(ctx context.Context, jobID uint) (models.Job, error) {
	return c.jobControl(ctx, jobID, "cancel")
}

// ForceStopJob finalizes a job stuck in cancelling
func (c *APIClient) ForceStopJob(ctx context.Context, jobID uint) (models.Job, error) {
	return c.jobControl(ctx, jobID, "force-stop")
}

func (c *APIClient) jobControl(ctx context.Context, jobID uint, action string) (models.Job, error) {
	var out models.Job
	err := c.post(ctx, fmt.Sprintf("/api/v1/jobs/%d/%s", jobID, action), nil, &out)
	return out, err
}

// UploadSettlement uploads a raw settlement report
func (c *APIClient) UploadSettlement(ctx context.Context, fileName string, csvData []byte) (UploadResult, error) {
	var out UploadResult
	endpoint := "/api/v1/settlements/imports?filename=" + url.QueryEscape(fileName)
	agent, err := c.createAgent(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return out, err
	}
	agent.Set(fiber.HeaderContentType, "text/csv")
	agent.Body(csvData)
	err = c.doRequest(agent, &out)
	return out, err
}

// GetImport retrieves one import with its counters and cached totals
func (c *APIClient) GetImport(ctx context.Context, importID uint) (models.SettlementImport, error) {
	var out models.SettlementImport
	err := c.get(ctx, fmt.Sprintf("/api/v1/settlements/imports/%d", importID), &out)
	return out, err
}

// ListImports retrieves the tenant's imports
func (c *APIClient) ListImports(ctx context.Context, opts *models.ListOptions) ([]models.SettlementImport, error) {
	endpoint := "/api/v1/settlements/imports" + listQuery("", opts)
	var out []models.SettlementImport
	err := c.get(ctx, endpoint, &out)
	return out, err
}

// ListImportRows retrieves the materialized rows of an import
func (c *APIClient) ListImportRows(ctx context.Context, importID uint) ([]models.SettlementRow, error) {
	var out []models.SettlementRow
	err := c.get(ctx, fmt.Sprintf("/api/v1/settlements/imports/%d/rows", importID), &out)
	return out, err
}

// RebuildImport re-materializes missing rows for an import
func (c *APIClient) RebuildImport(ctx context.Context, importID uint) (settlement.RebuildResult, error) {
	var out settlement.RebuildResult
	err := c.post(ctx, fmt.Sprintf("/api/v1/settlements/imports/%d/rebuild", importID), nil, &out)
	return out, err
}

// RecomputeCOGS re-derives match state and COGS across the tenant, or for a
// single import when importID is set
func (c *APIClient) RecomputeCOGS(ctx context.Context, importID *uint) (settlement.RecomputeResult, error) {
	endpoint := "/api/v1/settlements/recompute-cogs"
	if importID != nil {
		endpoint += fmt.Sprintf("?import_id=%d", *importID)
	}
	var out settlement.RecomputeResult
	err := c.post(ctx, endpoint, nil, &out)
	return out, err
}

// Audit runs a read-only integrity audit
func (c *APIClient) Audit(ctx context.Context, importID *uint) (settlement.Report, error) {
	endpoint := "/api/v1/settlements/audit"
	if importID != nil {
		endpoint += fmt.Sprintf("?import_id=%d", *importID)
	}
	var out settlement.Report
	err := c.get(ctx, endpoint, &out)
	return out, err
}

func listQuery(status string, opts *models.ListOptions) string {
	values := url.Values{}
	if status != "" {
		values.Set("status", status)
	}
	if opts != nil {
		if opts.Limit > 0 {
			values.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			values.Set("offset", strconv.Itoa(opts.Offset))
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

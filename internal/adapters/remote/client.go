// Package remote implements the compute port against the platform REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/ports/output"
)

// maxErrorBody bounds how much of an error response is kept as message.
const maxErrorBody = 4096

// Config holds remote client configuration.
type Config struct {
	BaseURL string
	Project string
	Token   string
	Timeout time.Duration
}

// Client implements output.ComputeService over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
	project string
	token   string
	metrics output.MetricsCollector
}

// NewClient creates a new remote client.
func NewClient(cfg Config, metrics output.MetricsCollector) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://earthengine.googleapis.com"
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		project: cfg.Project,
		token:   cfg.Token,
		metrics: metrics,
	}
}

type computeRequest struct {
	Expression *graph.Expression `json:"expression"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

type exportRequest struct {
	Expression        *graph.Expression `json:"expression"`
	Description       string            `json:"description"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
	Selectors         []string          `json:"selectors,omitempty"`
}

type fileExportOptions struct {
	FileFormat       string           `json:"fileFormat"`
	DriveDestination driveDestination `json:"driveDestination"`
}

type driveDestination struct {
	Folder         string `json:"folder,omitempty"`
	FilenamePrefix string `json:"filenamePrefix"`
}

type operation struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Compute evaluates expr and returns its JSON value.
func (c *Client) Compute(ctx context.Context, expr *graph.Node) (json.RawMessage, error) {
	encoded, err := graph.Encode(expr)
	if err != nil {
		return nil, err
	}

	var resp computeResponse
	if err := c.post(ctx, "compute", "value:compute", computeRequest{Expression: encoded}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// ExportTable starts a table export and returns the remote task id.
func (c *Client) ExportTable(ctx context.Context, export output.TableExport) (string, error) {
	encoded, err := graph.Encode(export.Collection)
	if err != nil {
		return "", err
	}

	format := export.FileFormat
	if format == "" {
		format = output.FileFormatCSV
	}

	body := exportRequest{
		Expression:  encoded,
		Description: export.Description,
		FileExportOptions: fileExportOptions{
			FileFormat: format,
			DriveDestination: driveDestination{
				Folder:         export.Folder,
				FilenamePrefix: export.Description,
			},
		},
		Selectors: export.Selectors,
	}

	var op operation
	if err := c.post(ctx, "export", "table:export", body, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", &domain.RemoteServiceError{Operation: "export", Message: "response carries no task name"}
	}
	return op.Name, nil
}

func (c *Client) post(ctx context.Context, op, method string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.IncRemoteCalls(op, err == nil)
		c.metrics.ObserveRemoteDuration(op, time.Since(start))
	}()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, c.project, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.RemoteServiceError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.RemoteServiceError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.RemoteServiceError{Operation: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// errorMessage extracts the platform's message from an error body, falling
// back to the raw text.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(data))
}

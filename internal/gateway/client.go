// Package gateway talks to the audit backend's REST API and defines the
// Bubble Tea messages that carry its results into the UI.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/auditwatch/auditwatch/internal/models"
)

var (
	// ErrUnauthorized is wrapped by APIError when the backend answers 401
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidProjectName rejects names outside [a-zA-Z0-9_-]
	ErrInvalidProjectName = errors.New("project name may only contain letters, digits, underscores and hyphens")

	// ErrUnsupportedArchive rejects uploads that are not a known archive type
	ErrUnsupportedArchive = errors.New("unsupported archive type, want .zip, .tar.gz, .tgz or .tar")
)

// APIError is a non-successful answer from the backend
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Config configures a Client
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	RetryMax int
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64
}

// Client is a REST client for one backend
type Client struct {
	resty   *resty.Client
	upload  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu        sync.RWMutex
	lastError error
}

// NewClient creates a client for cfg.BaseURL
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	// Hand the final response back so status codes reach APIError
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	base := strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		logger:  logger.Named("gateway"),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c.resty = resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "auditwatch/1.0").
		SetHeader("Accept", "application/json")

	// Uploads are neither retried nor bound by the request timeout
	c.upload = resty.New().
		SetBaseURL(base).
		SetTransport(retryClient.HTTPClient.Transport).
		SetHeader("User-Agent", "auditwatch/1.0")

	if cfg.Username != "" || cfg.Password != "" {
		c.resty.SetBasicAuth(cfg.Username, cfg.Password)
		c.upload.SetBasicAuth(cfg.Username, cfg.Password)
	}
	return c
}

// LastError returns the most recent transport or API error, if any
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) recordError(err error) error {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
	return err
}

// request creates a rate-limited request tagged with a fresh request id
func (c *Client) request(ctx context.Context, rc *resty.Client) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	id := uuid.NewString()
	c.logger.Debug("request", zap.String("request_id", id))
	return rc.R().SetContext(ctx).SetHeader("X-Request-ID", id), nil
}

func get[T any](ctx context.Context, c *Client, path string, pathParams, query map[string]string) (T, error) {
	var zero T
	req, err := c.request(ctx, c.resty)
	if err != nil {
		return zero, err
	}

	var out models.APIResponse[T]
	resp, err := req.
		SetPathParams(pathParams).
		SetQueryParams(query).
		SetResult(&out).
		SetError(&out).
		Get(path)
	if err != nil {
		return zero, c.recordError(fmt.Errorf("GET %s: %w", path, err))
	}
	if err := checkResponse(resp, out); err != nil {
		c.logger.Warn("request failed", zap.String("path", resp.Request.URL), zap.Error(err))
		return zero, c.recordError(err)
	}
	if out.Result == nil {
		return zero, nil
	}
	return *out.Result, nil
}

func checkResponse[T any](resp *resty.Response, out models.APIResponse[T]) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return &APIError{Status: resp.StatusCode(), Message: out.ErrorMessage(), Err: ErrUnauthorized}
	case resp.IsError():
		msg := out.ErrorMessage()
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	case !out.Success:
		return &APIError{Status: resp.StatusCode(), Message: out.ErrorMessage()}
	}
	return nil
}

func nameParam(name string) map[string]string {
	return map[string]string{"name": name}
}

// Projects lists project names
func (c *Client) Projects(ctx context.Context) ([]string, error) {
	return get[[]string](ctx, c, "/projects", nil, nil)
}

// ProjectDetail fetches the full record for one project
func (c *Client) ProjectDetail(ctx context.Context, name string) (*models.ProjectDetail, error) {
	d, err := get[models.ProjectDetail](ctx, c, "/projects/{name}", nameParam(name), nil)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Vulns lists a project's vulnerabilities
func (c *Client) Vulns(ctx context.Context, name string) ([]models.Vuln, error) {
	return get[[]models.Vuln](ctx, c, "/projects/{name}/vulns", nameParam(name), nil)
}

// Containers lists a project's verification containers
func (c *Client) Containers(ctx context.Context, name string) ([]models.Container, error) {
	return get[[]models.Container](ctx, c, "/projects/{name}/containers", nameParam(name), nil)
}

// Events returns the last count event log lines (50 when count <= 0)
func (c *Client) Events(ctx context.Context, name string, count int) ([]string, error) {
	if count <= 0 {
		count = 50
	}
	return get[[]string](ctx, c, "/projects/{name}/events", nameParam(name),
		map[string]string{"count": fmt.Sprint(count)})
}

// Reports returns the report id to name mapping
func (c *Client) Reports(ctx context.Context, name string) (models.ReportList, error) {
	return get[models.ReportList](ctx, c, "/projects/{name}/reports", nameParam(name), nil)
}

// EnvInfo returns the environment record, or nil when the backend has none
func (c *Client) EnvInfo(ctx context.Context, name string) (*models.EnvInfo, error) {
	env, err := get[*models.EnvInfo](ctx, c, "/projects/{name}/envinfo", nameParam(name), nil)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// StartProject starts an audit run
func (c *Client) StartProject(ctx context.Context, name string, startType models.StartType) (string, error) {
	var query map[string]string
	if startType == models.StartAnalysisOnly {
		query = map[string]string{"startType": "1"}
	}
	return get[string](ctx, c, "/projects/{name}/start", nameParam(name), query)
}

// CancelProject stops a running audit
func (c *Client) CancelProject(ctx context.Context, name string) (string, error) {
	return get[string](ctx, c, "/projects/{name}/cancel", nameParam(name), nil)
}

// DeleteProject removes a project and its data
func (c *Client) DeleteProject(ctx context.Context, name string) (string, error) {
	return get[string](ctx, c, "/projects/{name}/del", nameParam(name), nil)
}

// ReportContent fetches one report as text
func (c *Client) ReportContent(ctx context.Context, name, id string) (string, error) {
	req, err := c.request(ctx, c.resty)
	if err != nil {
		return "", err
	}
	resp, err := req.
		SetHeader("Accept", "*/*").
		SetPathParams(map[string]string{"name": name, "id": id}).
		Get("/projects/{name}/reports/download/{id}")
	if err != nil {
		return "", c.recordError(fmt.Errorf("fetch report %s: %w", id, err))
	}
	if resp.IsError() {
		return "", c.recordError(rawError(resp.StatusCode(), resp.Body()))
	}
	return string(resp.Body()), nil
}

// DownloadReport streams one report into w
func (c *Client) DownloadReport(ctx context.Context, name, id string, w io.Writer) (int64, error) {
	return c.download(ctx, "/projects/{name}/reports/download/{id}",
		map[string]string{"name": name, "id": id}, w)
}

// DownloadAllReports streams the zip of every report into w
func (c *Client) DownloadAllReports(ctx context.Context, name string, w io.Writer) (int64, error) {
	return c.download(ctx, "/projects/{name}/reports/downloadAll", nameParam(name), w)
}

func (c *Client) download(ctx context.Context, path string, params map[string]string, w io.Writer) (int64, error) {
	req, err := c.request(ctx, c.resty)
	if err != nil {
		return 0, err
	}
	resp, err := req.
		SetHeader("Accept", "*/*").
		SetPathParams(params).
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return 0, c.recordError(fmt.Errorf("download %s: %w", path, err))
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		data, _ := io.ReadAll(io.LimitReader(body, 4096))
		return 0, c.recordError(rawError(resp.StatusCode(), data))
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, c.recordError(fmt.Errorf("download %s: %w", path, err))
	}
	return n, nil
}

// rawError builds an APIError from a non-JSON endpoint, using the JSON
// error field when the backend sent one anyway
func rawError(status int, body []byte) error {
	var out models.APIResponse[string]
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &out); err == nil && out.ErrorMessage() != "" {
		msg = out.ErrorMessage()
	}
	apiErr := &APIError{Status: status, Message: msg}
	if status == http.StatusUnauthorized {
		apiErr.Err = ErrUnauthorized
	}
	return apiErr
}

// Summaries lists every project together with its status and vulnerability
// count. Details are fetched concurrently; a project whose detail cannot be
// loaded is reported as not running with no findings.
func (c *Client) Summaries(ctx context.Context) ([]models.ProjectSummary, error) {
	names, err := c.Projects(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ProjectSummary, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		out[i] = models.ProjectSummary{Name: name, Status: models.StatusNotRunning}
		g.Go(func() error {
			d, err := c.ProjectDetail(gctx, name)
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					return err
				}
				c.logger.Debug("project detail unavailable", zap.String("project", name), zap.Error(err))
				return nil
			}
			if d.Status != "" {
				out[i].Status = d.Status
			}
			out[i].VulnCount = len(d.VulnList)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

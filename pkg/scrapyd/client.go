// Package scrapyd is a client for the Scrapyd JSON API.
//
// Every JSON operation returns the decoded response body as-is (maps, slices and
// scalars from encoding/json); no schema is imposed. The client keeps no state
// between calls and never retries.
package scrapyd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/samvad-hq/scrapyd-go/pkg/httpclient"
)

const (
	defaultTimeout  = 30 * time.Second
	formContentType = "application/x-www-form-urlencoded"
)

// Client issues one HTTP request per call against a Scrapyd daemon.
type Client struct {
	baseURL   string
	transport httpclient.Client
	log       Logger
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithTransport injects the HTTP transport. The client does not own it.
func WithTransport(t httpclient.Client) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithLogger routes request traces to log.
func WithLogger(log Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a client for the daemon at baseURL (for example http://localhost:6800).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: normalizeBaseURL(baseURL),
		log:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = httpclient.NewRestyClient(defaultTimeout)
	}
	return c
}

// BaseURL returns the normalized base address.
func (c *Client) BaseURL() string { return c.baseURL }

// DaemonStatus reports the load status of the daemon.
func (c *Client) DaemonStatus(ctx context.Context) (any, error) {
	return c.getJSON(ctx, EndpointDaemonStatus, nil)
}

// scheduleRequest carries the optional inputs of Schedule.
type scheduleRequest struct {
	settings  *Params
	arguments *Params
	jobID     string
	version   string
}

// ScheduleOption sets an optional input of Schedule.
type ScheduleOption func(*scheduleRequest)

// WithSettings passes Scrapy setting overrides, sent as repeated setting=NAME=VALUE segments.
func WithSettings(p *Params) ScheduleOption {
	return func(r *scheduleRequest) { r.settings = p }
}

// WithArguments passes spider arguments. They may override project, spider and version.
func WithArguments(p *Params) ScheduleOption {
	return func(r *scheduleRequest) { r.arguments = p }
}

// WithJobID sets the job id. An empty id is omitted and the daemon generates one.
func WithJobID(id string) ScheduleOption {
	return func(r *scheduleRequest) { r.jobID = id }
}

// WithVersion selects the project version to run. Empty means the latest.
func WithVersion(v string) ScheduleOption {
	return func(r *scheduleRequest) { r.version = v }
}

// Schedule starts a spider run.
func (c *Client) Schedule(ctx context.Context, project, spider string, opts ...ScheduleOption) (any, error) {
	url, err := c.BuildURL(string(EndpointSchedule))
	if err != nil {
		return nil, err
	}

	var req scheduleRequest
	for _, opt := range opts {
		opt(&req)
	}
	body := scheduleBody(project, spider, req)

	c.log.DebugObj("scrapyd request", "scrapyd_request", map[string]any{
		"method": http.MethodPost,
		"url":    url,
		"body":   body,
	})
	resp, err := c.transport.Post(ctx, url, body, map[string]string{"Content-Type": formContentType})
	if err != nil {
		return nil, err
	}
	return decodeJSON(EndpointSchedule, http.MethodPost, url, resp)
}

func scheduleBody(project, spider string, req scheduleRequest) string {
	data := NewParams().
		SetString("project", project).
		SetString("spider", spider).
		SetString("version", req.version)
	data.Merge(req.arguments)
	if req.jobID != "" {
		data.SetString("jobid", req.jobID)
	}

	data = StringifyBooleans(data)
	settings := StringifyBooleans(req.settings)

	return appendSettings(data.Encode(), settings)
}

// Cancel stops a pending or running job.
func (c *Client) Cancel(ctx context.Context, project, job string) (any, error) {
	return c.postForm(ctx, EndpointCancel, NewParams().
		SetString("project", project).
		SetString("job", job))
}

// ListProjects lists the projects uploaded to the daemon.
func (c *Client) ListProjects(ctx context.Context) (any, error) {
	return c.getJSON(ctx, EndpointListProjects, nil)
}

// ListVersions lists the versions available for project.
func (c *Client) ListVersions(ctx context.Context, project string) (any, error) {
	return c.getJSON(ctx, EndpointListVersions, NewParams().SetString("project", project))
}

// ListJobs lists pending, running and finished jobs of project.
func (c *Client) ListJobs(ctx context.Context, project string) (any, error) {
	return c.getJSON(ctx, EndpointListJobs, NewParams().SetString("project", project))
}

// ListSpiders lists the spiders of project. An empty version queries the latest one.
func (c *Client) ListSpiders(ctx context.Context, project, version string) (any, error) {
	query := NewParams().SetString("project", project)
	if version != "" {
		query.SetString("version", version)
	}
	return c.getJSON(ctx, EndpointListSpiders, query)
}

// DeleteVersion removes one version of project.
func (c *Client) DeleteVersion(ctx context.Context, project, version string) (any, error) {
	return c.postForm(ctx, EndpointDeleteVersion, NewParams().
		SetString("project", project).
		SetString("version", version))
}

// DeleteProject removes project and all of its versions.
func (c *Client) DeleteProject(ctx context.Context, project string) (any, error) {
	return c.postForm(ctx, EndpointDeleteProject, NewParams().SetString("project", project))
}

// AddVersion would upload an egg. Egg uploads are not supported and always fail
// with ErrNotImplemented without contacting the daemon.
func (c *Client) AddVersion(_ context.Context, project, version string, _ []byte) (any, error) {
	c.log.DebugObj("scrapyd addversion rejected", "scrapyd_request", map[string]any{
		"project": project,
		"version": version,
	})
	return nil, ErrNotImplemented
}

// ShowLog returns the raw log text of a job.
func (c *Client) ShowLog(ctx context.Context, project, spider, jobID string) (string, error) {
	body, err := c.getRaw(ctx, c.LogURL(project, spider, jobID))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) getJSON(ctx context.Context, ep Endpoint, query *Params) (any, error) {
	url, err := c.BuildURL(string(ep))
	if err != nil {
		return nil, err
	}
	if query.Len() > 0 {
		url += "?" + query.Encode()
	}

	c.log.DebugObj("scrapyd request", "scrapyd_request", map[string]any{
		"method": http.MethodGet,
		"url":    url,
	})
	resp, err := c.transport.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON(ep, http.MethodGet, url, resp)
}

func (c *Client) postForm(ctx context.Context, ep Endpoint, form *Params) (any, error) {
	url, err := c.BuildURL(string(ep))
	if err != nil {
		return nil, err
	}

	c.log.DebugObj("scrapyd request", "scrapyd_request", map[string]any{
		"method": http.MethodPost,
		"url":    url,
		"form":   form.Encode(),
	})
	resp, err := c.transport.PostForm(ctx, url, form.Values(), nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON(ep, http.MethodPost, url, resp)
}

func (c *Client) getRaw(ctx context.Context, url string) ([]byte, error) {
	c.log.DebugObj("scrapyd request", "scrapyd_request", map[string]any{
		"method": http.MethodGet,
		"url":    url,
	})
	resp, err := c.transport.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(http.MethodGet, url, resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func decodeJSON(ep Endpoint, method, url string, resp httpclient.Response) (any, error) {
	if err := checkStatus(method, url, resp); err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &DecodeError{Endpoint: ep, Body: resp.Body(), Err: err}
	}
	return out, nil
}

func checkStatus(method, url string, resp httpclient.Response) error {
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return &StatusError{Method: method, URL: url, StatusCode: code, Body: resp.Body()}
	}
	return nil
}

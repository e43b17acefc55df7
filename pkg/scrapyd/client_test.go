package scrapyd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/samvad-hq/scrapyd-go/pkg/httpclient"
)

// stubResponse implements httpclient.Response.
type stubResponse struct {
	body       []byte
	statusCode int
}

func (s stubResponse) Body() []byte    { return s.body }
func (s stubResponse) StatusCode() int { return s.statusCode }

// recordedCall captures a single transport invocation.
type recordedCall struct {
	method  string
	url     string
	body    string
	form    url.Values
	headers map[string]string
}

// recordingTransport records calls and answers with a fixed response or error.
type recordingTransport struct {
	mu    sync.Mutex
	calls []recordedCall
	resp  httpclient.Response
	err   error
}

func (r *recordingTransport) record(c recordedCall) (httpclient.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if r.err != nil {
		return nil, r.err
	}
	if r.resp == nil {
		return stubResponse{body: []byte(`{"status":"ok"}`), statusCode: http.StatusOK}, nil
	}
	return r.resp, nil
}

func (r *recordingTransport) Get(_ context.Context, u string, headers map[string]string) (httpclient.Response, error) {
	return r.record(recordedCall{method: http.MethodGet, url: u, headers: headers})
}

func (r *recordingTransport) Post(_ context.Context, u string, body string, headers map[string]string) (httpclient.Response, error) {
	return r.record(recordedCall{method: http.MethodPost, url: u, body: body, headers: headers})
}

func (r *recordingTransport) PostForm(_ context.Context, u string, form url.Values, headers map[string]string) (httpclient.Response, error) {
	return r.record(recordedCall{method: http.MethodPost, url: u, form: form, headers: headers})
}

func (r *recordingTransport) only(t *testing.T) recordedCall {
	t.Helper()
	if len(r.calls) != 1 {
		t.Fatalf("expected 1 transport call, got %d", len(r.calls))
	}
	return r.calls[0]
}

func newTestClient(tr *recordingTransport) *Client {
	return NewClient("http://scrapyd:6800", WithTransport(tr))
}

func TestScheduleDefaultBody(t *testing.T) {
	tr := &recordingTransport{}
	if _, err := newTestClient(tr).Schedule(context.Background(), "p", "s"); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	call := tr.only(t)
	if call.method != http.MethodPost || call.url != "http://scrapyd:6800/schedule.json" {
		t.Fatalf("unexpected request %s %s", call.method, call.url)
	}
	if call.body != "project=p&spider=s&version=" {
		t.Fatalf("body = %q", call.body)
	}
	if call.headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", call.headers["Content-Type"])
	}
}

func TestScheduleJobIDAndSettings(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestClient(tr).Schedule(context.Background(), "p", "s",
		WithSettings(NewParams().SetBool("a", true)),
		WithJobID("123"),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	body := tr.only(t).body
	if body != "project=p&spider=s&version=&jobid=123&setting=a=True" {
		t.Fatalf("body = %q", body)
	}
	if !strings.HasSuffix(body, "&setting=a=True") {
		t.Fatalf("body missing trailing setting: %q", body)
	}
}

func TestScheduleArgumentsOverrideVersion(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestClient(tr).Schedule(context.Background(), "p", "s",
		WithArguments(NewParams().SetString("version", "2").SetBool("follow", false).SetString("q", "a b")),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	body := tr.only(t).body
	if strings.Contains(body, "version=&") || !strings.Contains(body, "version=2") {
		t.Fatalf("version not overridden: %q", body)
	}
	if body != "project=p&spider=s&version=2&follow=False&q=a+b" {
		t.Fatalf("body = %q", body)
	}
}

func TestScheduleExplicitVersionAndJobIDWinsOverArgument(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestClient(tr).Schedule(context.Background(), "p", "s",
		WithVersion("r1"),
		WithArguments(NewParams().SetString("jobid", "from-args")),
		WithJobID("explicit"),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if body := tr.only(t).body; body != "project=p&spider=s&version=r1&jobid=explicit" {
		t.Fatalf("body = %q", body)
	}
}

func TestScheduleSettingsAreNotEscaped(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestClient(tr).Schedule(context.Background(), "p", "s",
		WithSettings(NewParams().SetString("LOG_FILE", "/tmp/a b.log").SetBool("COOKIES_ENABLED", false)),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := "project=p&spider=s&version=&setting=LOG_FILE=/tmp/a b.log&setting=COOKIES_ENABLED=False"
	if body := tr.only(t).body; body != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
}

func TestFormOperations(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) (any, error)
		url  string
		form url.Values
	}{
		{
			name: "cancel",
			call: func(c *Client) (any, error) { return c.Cancel(context.Background(), "p", "j1") },
			url:  "http://scrapyd:6800/cancel.json",
			form: url.Values{"project": {"p"}, "job": {"j1"}},
		},
		{
			name: "delversion",
			call: func(c *Client) (any, error) { return c.DeleteVersion(context.Background(), "p", "v1") },
			url:  "http://scrapyd:6800/delversion.json",
			form: url.Values{"project": {"p"}, "version": {"v1"}},
		},
		{
			name: "delproject",
			call: func(c *Client) (any, error) { return c.DeleteProject(context.Background(), "p") },
			url:  "http://scrapyd:6800/delproject.json",
			form: url.Values{"project": {"p"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{}
			if _, err := tt.call(newTestClient(tr)); err != nil {
				t.Fatalf("call: %v", err)
			}
			call := tr.only(t)
			if call.method != http.MethodPost || call.url != tt.url {
				t.Fatalf("unexpected request %s %s", call.method, call.url)
			}
			if call.form.Encode() != tt.form.Encode() {
				t.Fatalf("form = %v, want %v", call.form, tt.form)
			}
		})
	}
}

func TestQueryOperations(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) (any, error)
		url  string
	}{
		{
			name: "daemonstatus",
			call: func(c *Client) (any, error) { return c.DaemonStatus(context.Background()) },
			url:  "http://scrapyd:6800/daemonstatus.json",
		},
		{
			name: "listprojects",
			call: func(c *Client) (any, error) { return c.ListProjects(context.Background()) },
			url:  "http://scrapyd:6800/listprojects.json",
		},
		{
			name: "listversions",
			call: func(c *Client) (any, error) { return c.ListVersions(context.Background(), "p") },
			url:  "http://scrapyd:6800/listversions.json?project=p",
		},
		{
			name: "listjobs",
			call: func(c *Client) (any, error) { return c.ListJobs(context.Background(), "my proj") },
			url:  "http://scrapyd:6800/listjobs.json?project=my+proj",
		},
		{
			name: "listspiders latest",
			call: func(c *Client) (any, error) { return c.ListSpiders(context.Background(), "p", "") },
			url:  "http://scrapyd:6800/listspiders.json?project=p",
		},
		{
			name: "listspiders version",
			call: func(c *Client) (any, error) { return c.ListSpiders(context.Background(), "p", "2") },
			url:  "http://scrapyd:6800/listspiders.json?project=p&version=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{}
			if _, err := tt.call(newTestClient(tr)); err != nil {
				t.Fatalf("call: %v", err)
			}
			call := tr.only(t)
			if call.method != http.MethodGet || call.url != tt.url {
				t.Fatalf("got %s %s, want GET %s", call.method, call.url, tt.url)
			}
		})
	}
}

func TestShowLogReturnsRawBody(t *testing.T) {
	logText := "2024-01-01 [scrapy] INFO: Spider opened\n{\"not\": json"
	tr := &recordingTransport{resp: stubResponse{body: []byte(logText), statusCode: http.StatusOK}}

	got, err := newTestClient(tr).ShowLog(context.Background(), "proj", "spider", "job1")
	if err != nil {
		t.Fatalf("ShowLog: %v", err)
	}
	if got != logText {
		t.Fatalf("ShowLog altered body: %q", got)
	}
	call := tr.only(t)
	if call.method != http.MethodGet || call.url != "http://scrapyd:6800/logs/proj/spider/job1.log" {
		t.Fatalf("unexpected request %s %s", call.method, call.url)
	}
}

func TestAddVersionNeverCallsTransport(t *testing.T) {
	tr := &recordingTransport{}
	_, err := newTestClient(tr).AddVersion(context.Background(), "p", "v1", []byte("egg"))
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("AddVersion err = %v, want ErrNotImplemented", err)
	}
	if len(tr.calls) != 0 {
		t.Fatalf("expected no transport calls, got %d", len(tr.calls))
	}
}

func TestTransportErrorsPropagateUnmodified(t *testing.T) {
	sentinel := errors.New("connection refused")
	tr := &recordingTransport{err: sentinel}
	if _, err := newTestClient(tr).DaemonStatus(context.Background()); err != sentinel {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if _, err := newTestClient(tr).ShowLog(context.Background(), "p", "s", "j"); err != sentinel {
		t.Fatalf("ShowLog err = %v, want sentinel", err)
	}
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	tr := &recordingTransport{resp: stubResponse{body: []byte("boom"), statusCode: http.StatusInternalServerError}}
	_, err := newTestClient(tr).ListProjects(context.Background())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.URL != "http://scrapyd:6800/listprojects.json" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error missing body snippet: %v", err)
	}
}

func TestInvalidJSONBecomesDecodeError(t *testing.T) {
	tr := &recordingTransport{resp: stubResponse{body: []byte("<html>"), statusCode: http.StatusOK}}
	_, err := newTestClient(tr).ListJobs(context.Background(), "p")

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if decodeErr.Endpoint != EndpointListJobs {
		t.Fatalf("endpoint = %s", decodeErr.Endpoint)
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("DecodeError does not unwrap to json error: %v", err)
	}
}

func TestClientAgainstHTTPServer(t *testing.T) {
	var scheduleBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/schedule.json":
			raw, _ := io.ReadAll(r.Body)
			scheduleBody = string(raw)
			_, _ = w.Write([]byte(`{"status":"ok","jobid":"6487ec79947edab326d6db28a2d86511e8247444"}`))
		case "/listprojects.json":
			_, _ = w.Write([]byte(`{"status":"ok","projects":["myproject","otherproject"]}`))
		case "/cancel.json":
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm: %v", err)
			}
			if r.PostForm.Get("project") != "myproject" || r.PostForm.Get("job") != "j1" {
				t.Errorf("unexpected cancel form %v", r.PostForm)
			}
			_, _ = w.Write([]byte(`{"status":"ok","prevstate":"running"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	res, err := c.Schedule(ctx, "myproject", "somespider", WithSettings(NewParams().SetString("DOWNLOAD_DELAY", "2")))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if scheduleBody != "project=myproject&spider=somespider&version=&setting=DOWNLOAD_DELAY=2" {
		t.Fatalf("server received %q", scheduleBody)
	}
	if m, ok := res.(map[string]any); !ok || m["jobid"] != "6487ec79947edab326d6db28a2d86511e8247444" {
		t.Fatalf("unexpected schedule result %#v", res)
	}

	projects, err := c.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	list, _ := projects.(map[string]any)["projects"].([]any)
	if len(list) != 2 || list[0] != "myproject" {
		t.Fatalf("unexpected projects %#v", projects)
	}

	if _, err := c.Cancel(ctx, "myproject", "j1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err = c.ListVersions(ctx, "missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestConcurrentSchedulesShareClient(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestClient(tr)
	settings := NewParams().SetBool("ROBOTSTXT_OBEY", false)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			args := NewParams().SetBool("debug", i%2 == 0)
			_, err := c.Schedule(context.Background(), "p", "s",
				WithSettings(settings),
				WithArguments(args),
				WithJobID("job"+strconv.Itoa(i)),
			)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	if len(tr.calls) != workers {
		t.Fatalf("expected %d calls, got %d", workers, len(tr.calls))
	}
	seen := make(map[string]bool, workers)
	for _, call := range tr.calls {
		seen[call.body] = true
	}
	for i := 0; i < workers; i++ {
		debug := "False"
		if i%2 == 0 {
			debug = "True"
		}
		want := "project=p&spider=s&version=&debug=" + debug + "&jobid=job" + strconv.Itoa(i) + "&setting=ROBOTSTXT_OBEY=False"
		if !seen[want] {
			t.Fatalf("missing body %q", want)
		}
	}
	if v, _ := settings.Get("ROBOTSTXT_OBEY"); !v.Equal(Bool(false)) {
		t.Fatalf("shared settings were modified: %#v", v)
	}
}

package scrapyd

import (
	"fmt"
	"strings"
)

// Endpoint is one of the fixed JSON resources exposed by a Scrapyd daemon.
type Endpoint string

const (
	EndpointDaemonStatus  Endpoint = "daemonstatus.json"
	EndpointSchedule      Endpoint = "schedule.json"
	EndpointAddVersion    Endpoint = "addversion.json"
	EndpointCancel        Endpoint = "cancel.json"
	EndpointListProjects  Endpoint = "listprojects.json"
	EndpointListVersions  Endpoint = "listversions.json"
	EndpointListSpiders   Endpoint = "listspiders.json"
	EndpointListJobs      Endpoint = "listjobs.json"
	EndpointDeleteVersion Endpoint = "delversion.json"
	EndpointDeleteProject Endpoint = "delproject.json"
)

var endpoints = []Endpoint{
	EndpointDaemonStatus,
	EndpointSchedule,
	EndpointAddVersion,
	EndpointCancel,
	EndpointListProjects,
	EndpointListVersions,
	EndpointListSpiders,
	EndpointListJobs,
	EndpointDeleteVersion,
	EndpointDeleteProject,
}

var endpointIdx = func() map[Endpoint]struct{} {
	idx := make(map[Endpoint]struct{}, len(endpoints))
	for _, e := range endpoints {
		idx[e] = struct{}{}
	}
	return idx
}()

// Endpoints returns every registered endpoint in declaration order.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	return out
}

// Registered reports whether e is one of the known endpoints. Matching is exact.
func (e Endpoint) Registered() bool {
	_, ok := endpointIdx[e]
	return ok
}

// BuildURL returns the absolute URL for a registered endpoint name.
func (c *Client) BuildURL(name string) (string, error) {
	if !Endpoint(name).Registered() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return c.baseURL + name, nil
}

// LogURL returns the URL of a job's log file. Segments are interpolated as-is.
func (c *Client) LogURL(project, spider, jobID string) string {
	return c.baseURL + "logs/" + project + "/" + spider + "/" + jobID + ".log"
}

// logDirURL returns the URL of the directory listing holding a spider's logs.
func (c *Client) logDirURL(project, spider string) string {
	return c.baseURL + "logs/" + project + "/" + spider + "/"
}

func normalizeBaseURL(raw string) string {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

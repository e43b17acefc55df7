package scrapyd

import (
	"errors"
	"testing"
)

func TestBuildURLRegisteredEndpoints(t *testing.T) {
	c := NewClient("http://localhost:6800", WithTransport(&recordingTransport{}))
	for _, ep := range Endpoints() {
		got, err := c.BuildURL(string(ep))
		if err != nil {
			t.Fatalf("BuildURL(%s): %v", ep, err)
		}
		if want := "http://localhost:6800/" + string(ep); got != want {
			t.Fatalf("BuildURL(%s) = %q, want %q", ep, got, want)
		}
	}
	if n := len(Endpoints()); n != 10 {
		t.Fatalf("expected 10 endpoints, got %d", n)
	}
}

func TestBuildURLRejectsUnknownNames(t *testing.T) {
	c := NewClient("http://localhost:6800", WithTransport(&recordingTransport{}))
	for _, name := range []string{
		"",
		"status.json",
		"Schedule.json",
		"DAEMONSTATUS.JSON",
		"schedule.json/../admin",
		"api/schedule.json",
		"schedule",
	} {
		if _, err := c.BuildURL(name); !errors.Is(err, ErrUnknownEndpoint) {
			t.Fatalf("BuildURL(%q) err = %v, want ErrUnknownEndpoint", name, err)
		}
	}
}

func TestBaseURLNormalization(t *testing.T) {
	a := NewClient("http://x", WithTransport(&recordingTransport{}))
	b := NewClient("http://x/", WithTransport(&recordingTransport{}))
	if a.BaseURL() != "http://x/" || b.BaseURL() != "http://x/" {
		t.Fatalf("base urls %q / %q", a.BaseURL(), b.BaseURL())
	}
	if got := normalizeBaseURL(normalizeBaseURL("http://x")); got != "http://x/" {
		t.Fatalf("normalization not idempotent: %q", got)
	}
}

func TestLogURLInterpolatesAsIs(t *testing.T) {
	c := NewClient("http://x:6800/", WithTransport(&recordingTransport{}))
	if got := c.LogURL("proj", "spider", "job1"); got != "http://x:6800/logs/proj/spider/job1.log" {
		t.Fatalf("LogURL = %q", got)
	}
	if got := c.LogURL("a b", "s/p", "j"); got != "http://x:6800/logs/a b/s/p/j.log" {
		t.Fatalf("LogURL rewrote segments: %q", got)
	}
}

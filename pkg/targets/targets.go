package targets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package targets loads named Scrapyd deploy targets from YAML/JSON files.

// Target describes one Scrapyd daemon the CLI can talk to.
type Target struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Project  string `json:"project" yaml:"project"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type targetsFile struct {
	Targets []Target `json:"targets" yaml:"targets"`
}

// Registry holds the targets loaded from a file. It is immutable after
// LoadRegistry returns.
type Registry struct {
	targets []Target
	idx     map[string]Target
}

// LoadRegistry loads targets from path.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("targets file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	parsed, err := parseTargets(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Targets) == 0 {
		return nil, errors.New("targets file contains no targets entries")
	}

	reg := &Registry{
		targets: make([]Target, len(parsed.Targets)),
		idx:     make(map[string]Target, len(parsed.Targets)),
	}
	for i := range parsed.Targets {
		t := sanitizeTarget(parsed.Targets[i])
		if err := validateTarget(t); err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if _, exists := reg.idx[t.Name]; exists {
			return nil, fmt.Errorf("duplicate target name %q", t.Name)
		}
		reg.targets[i] = t
		reg.idx[t.Name] = t
	}

	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseTargets(data []byte, ext string) (targetsFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var out targetsFile
		if err := d.fn(data, &out); err == nil {
			return out, nil
		}
	}

	return targetsFile{}, errors.New("targets file format not recognized (expected YAML or JSON)")
}

func sanitizeTarget(t Target) Target {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	t.URL = strings.TrimSpace(t.URL)
	t.Project = strings.TrimSpace(t.Project)
	t.Username = strings.TrimSpace(t.Username)
	return t
}

func validateTarget(t Target) error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.URL == "" {
		return fmt.Errorf("url is required for target %q", t.Name)
	}
	if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
		return fmt.Errorf("url for target %q must be http(s), got %q", t.Name, t.URL)
	}
	if t.Password != "" && t.Username == "" {
		return fmt.Errorf("password without username for target %q", t.Name)
	}
	return nil
}

// ByName returns the target with the given name (case-insensitive).
func (r *Registry) ByName(name string) (Target, bool) {
	if r == nil {
		return Target{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Target{}, false
	}

	t, ok := r.idx[name]
	return t, ok
}

// All returns every target in file order.
func (r *Registry) All() []Target {
	if r == nil {
		return nil
	}

	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

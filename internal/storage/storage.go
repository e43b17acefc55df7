package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/scrapyd-go/internal/domain"
)

// Package storage provides the local job journal.

// Journal remembers jobs scheduled through the CLI.
type Journal interface {
	Close() error
	Record(rec domain.JobRecord) error
	Lookup(jobID string) (domain.JobRecord, bool, error)
	List() ([]domain.JobRecord, error)
}

// Options controls retention characteristics for concrete journal implementations.
type Options struct {
	RecordTTL       time.Duration
	CleanupInterval time.Duration
}

const (
	defaultRecordTTL       = 7 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewJournal creates the configured journal backend.
func NewJournal(typ, path string, opts Options) (Journal, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopJournal{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt journal requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported journal type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = defaultRecordTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopJournal struct{}

func (noopJournal) Close() error                      { return nil }
func (noopJournal) Record(domain.JobRecord) error     { return nil }
func (noopJournal) List() ([]domain.JobRecord, error) { return nil, nil }
func (noopJournal) Lookup(string) (domain.JobRecord, bool, error) {
	return domain.JobRecord{}, false, nil
}

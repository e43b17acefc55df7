package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/scrapyd-go/internal/logger"
	"github.com/samvad-hq/scrapyd-go/pkg/targets"
)

// StatusFunc queries the daemon status of one target.
type StatusFunc func(ctx context.Context, t targets.Target) (any, error)

// Result is the outcome of checking one target.
type Result struct {
	Target    string `json:"target"`
	URL       string `json:"url"`
	Status    any    `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Service checks daemon status across multiple targets concurrently.
type Service struct {
	status  StatusFunc
	log     logger.Logger
	workers int
}

// NewService wires a sweep with the per-target status call. workers bounds concurrency.
func NewService(status StatusFunc, log logger.Logger, workers int) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	if workers <= 0 {
		workers = 4
	}
	return &Service{status: status, log: log, workers: workers}
}

// Run checks every target and returns results in input order. Failed targets
// are reported both in their Result and in the joined error.
func (s *Service) Run(ctx context.Context, ts []targets.Target) ([]Result, error) {
	if s == nil || s.status == nil {
		return nil, fmt.Errorf("sweep service is not initialized")
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}

	results := make([]Result, len(ts))
	errs := make([]error, len(ts))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, t := range ts {
		wg.Add(1)
		go func(i int, t targets.Target) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{Target: t.Name, URL: t.URL, Error: ctx.Err().Error()}
				errs[i] = fmt.Errorf("target %s: %w", t.Name, ctx.Err())
				return
			}
			defer func() { <-sem }()
			results[i], errs[i] = s.runTarget(ctx, t)
		}(i, t)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

func (s *Service) runTarget(ctx context.Context, t targets.Target) (Result, error) {
	start := time.Now()
	res := Result{Target: t.Name, URL: t.URL}

	status, err := s.status(ctx, t)
	res.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		s.log.ErrorObj("target status failed", "target_error", map[string]any{
			"target": t.Name,
			"error":  err.Error(),
		})
		return res, fmt.Errorf("target %s: %w", t.Name, err)
	}

	res.Status = status
	s.log.DebugObj("target status completed", "target_result", map[string]any{
		"target":     t.Name,
		"elapsed_ms": res.ElapsedMS,
	})
	return res, nil
}

package notifiers

import (
	"context"
	"fmt"
	"strings"
)

// Builder creates a Notifier from a config entry.
type Builder func(ctx context.Context, cfg NotifierConfig, log Logger) (Notifier, error)

// Builders maps a notifier type (lowercase) to its constructor. It is a plain
// map filled before use and only read afterwards.
type Builders map[string]Builder

// DefaultBuilders returns constructors for every sink type this package ships.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:   newHTTPNotifier,
		TypeSQS:    newSQSNotifier,
		TypeSNS:    newSNSNotifier,
		TypePubSub: newPubSubNotifier,
	}
}

// Build constructs the sink for cfg. Entries with an actions list are wrapped
// so that other actions never reach the sink.
func (b Builders) Build(ctx context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("notifier %q: type missing", cfg.ID)
	}
	build, ok := b[typ]
	if !ok || build == nil {
		return nil, fmt.Errorf("notifier %q: unsupported type %q", cfg.ID, cfg.Type)
	}

	n, err := build(ctx, cfg, ensureLogger(log))
	if err != nil {
		return nil, fmt.Errorf("notifier %q: %w", cfg.ID, err)
	}
	if len(cfg.Actions) == 0 {
		return n, nil
	}
	return actionFilter{Notifier: n, cfg: cfg}, nil
}

// BuildAll constructs one sink per entry. On the first failure every sink
// built so far is closed and nothing is returned.
func (b Builders) BuildAll(ctx context.Context, cfgs []NotifierConfig, log Logger) ([]Notifier, error) {
	out := make([]Notifier, 0, len(cfgs))
	for _, cfg := range cfgs {
		n, err := b.Build(ctx, cfg, log)
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

type actionFilter struct {
	Notifier
	cfg NotifierConfig
}

func (f actionFilter) Notify(ctx context.Context, evt JobEvent) error {
	if f.cfg.Wants(evt.Action) {
		return f.Notifier.Notify(ctx, evt)
	}
	return nil
}

package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/scrapyd-go/pkg/httpclient"
)

const maxWebhookReply = 512

// webhook posts each JobEvent as a JSON document to a fixed URL.
type webhook struct {
	cfg    NotifierConfig
	client *resty.Client
	log    Logger
}

func newHTTPNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("http section missing")
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	client := httpclient.NewRestyHTTPClient(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.HTTP.Headers)

	return &webhook{cfg: cfg, client: client, log: ensureLogger(log)}, nil
}

func (w *webhook) ID() string   { return w.cfg.ID }
func (w *webhook) Type() string { return TypeHTTP }
func (w *webhook) Close() error { return nil }

func (w *webhook) Notify(ctx context.Context, evt JobEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Execute(w.cfg.HTTP.Method, w.cfg.HTTP.URL)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", w.cfg.HTTP.URL, err)
	}

	code := resp.StatusCode()
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		reply := resp.Body()
		if len(reply) > maxWebhookReply {
			reply = reply[:maxWebhookReply]
		}
		return fmt.Errorf("webhook %s answered %d: %q", w.cfg.HTTP.URL, code, reply)
	}

	w.log.DebugObj("webhook accepted job event", "notifier_http_delivery", map[string]any{
		"notifier_id": w.cfg.ID,
		"action":      evt.Action,
		"status":      code,
	})
	return nil
}

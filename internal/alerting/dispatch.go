package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/metrics"
	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// Channel delivers one alert notification to an external consumer.
type Channel interface {
	Name() string
	Send(ctx context.Context, event models.AlertEvent) error
}

// Dispatcher fans an alert out to every configured channel, retrying each
// channel up to its budget with exponential backoff. Exhausted budgets are
// logged and reported; the event itself is never discarded.
type Dispatcher struct {
	logger   *slog.Logger
	channels []Channel
	retries  int
	backoff  time.Duration
	timeout  time.Duration
}

// NewDispatcher assembles the fan-out. retries is the per-channel attempt
// count; backoff doubles between attempts.
func NewDispatcher(logger *slog.Logger, channels []Channel, retries int, backoff, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{logger: logger, channels: channels, retries: retries, backoff: backoff, timeout: timeout}
}

// Dispatch sends the event to all channels and reports whether every channel
// accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.AlertEvent) bool {
	delivered := true
	for _, ch := range d.channels {
		if err := d.sendWithRetry(ctx, ch, event); err != nil {
			metrics.DispatchObserved(ch.Name(), metrics.OutcomeError)
			d.logger.Error("alert dispatch exhausted retry budget",
				slog.String("channel", ch.Name()),
				slog.String("alert_id", event.ID),
				slog.Any("error", err))
			delivered = false
			continue
		}
		metrics.DispatchObserved(ch.Name(), metrics.OutcomeSuccess)
	}
	return delivered
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, event models.AlertEvent) error {
	var lastErr error
	for attempt := 0; attempt < d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff << attempt):
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := ch.Send(sendCtx, event)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return utils.NewAppError("alerting.Dispatch", utils.KindDispatch,
		fmt.Sprintf("channel %s failed after %d attempts", ch.Name(), d.retries), lastErr)
}

// WebhookChannel posts alert events as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel. A nil client uses a default
// with sane timeouts.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{url: url, client: client}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, event models.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogChannel writes alert notifications to the structured log. It never
// fails, so a bare configuration still surfaces every alert somewhere.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(_ context.Context, event models.AlertEvent) error {
	l.logger.Warn("alert",
		slog.String("alert_id", event.ID),
		slog.String("sensor", event.SensorID),
		slog.String("severity", string(event.Severity)),
		slog.String("source", string(event.RuleSource)),
		slog.Float64("value", event.Value),
		slog.String("message", event.Message))
	return nil
}

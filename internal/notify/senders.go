package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Sender delivers on one channel. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, d Delivery) error

func (f SenderFunc) Send(ctx context.Context, d Delivery) error { return f(ctx, d) }

// Senders binds one sender per channel. A nil sender disables its channel.
type Senders struct {
	Message Sender
	SMS     Sender
	Push    Sender
}

func (s Senders) byChannel() map[Channel]Sender {
	m := make(map[Channel]Sender, 3)
	if s.Message != nil {
		m[ChannelMessage] = s.Message
	}
	if s.SMS != nil {
		m[ChannelSMS] = s.SMS
	}
	if s.Push != nil {
		m[ChannelPush] = s.Push
	}
	return m
}

// ─── HTTP gateway sender ─────────────────────────────────────────────────────

const gatewayTimeout = 10 * time.Second

// HTTPSender posts deliveries as JSON to a channel gateway (mail relay, SMS
// provider bridge, push service). Any non-2xx answer is a delivery error.
type HTTPSender struct {
	URL    string
	Token  string
	client *http.Client
}

// NewHTTPSender constructs a sender with its own HTTP client. The per-channel
// dispatch timeout still applies on top of the client timeout.
func NewHTTPSender(url, token string) *HTTPSender {
	return &HTTPSender{URL: url, Token: token, client: &http.Client{Timeout: gatewayTimeout}}
}

func (s *HTTPSender) Send(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", d.EventID+"/"+string(d.Channel))
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s gateway: %w", d.Channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s gateway returned %d: %s", d.Channel, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// ─── Log sender ──────────────────────────────────────────────────────────────

// LogSender only logs; used when no gateway is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, d Delivery) error {
	slog.Info("notification delivered to log", "channel", d.Channel, "eventId", d.EventID,
		"recipient", d.Recipient.ID, "title", d.Title)
	return nil
}

// ─── Circuit breaker ─────────────────────────────────────────────────────────

// BreakerSender stops calling a failing gateway for a cool-down period. While
// open, sends fail fast with gobreaker.ErrOpenState.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSender wraps next; the breaker trips after maxFailures
// consecutive failures and half-opens after coolDown.
func NewBreakerSender(name string, next Sender, maxFailures uint32, coolDown time.Duration) *BreakerSender {
	return &BreakerSender{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     coolDown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("channel breaker state change", "channel", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *BreakerSender) Send(ctx context.Context, d Delivery) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, d)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *BreakerSender) State() gobreaker.State { return b.cb.State() }

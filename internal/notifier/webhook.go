// Package notifier delivers alert transitions to an external webhook
// sink with bounded timeouts, failure classification, cooldown-based
// deduplication, and per-attempt delivery records.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds one delivery attempt. A timed-out attempt is
// recorded as failed, never left "sent" forever.
const defaultTimeout = 4 * time.Second

// SinkConfig holds webhook sink settings. The sink URL and secret are
// configuration owned by the caller, not this core.
type SinkConfig struct {
	URL    string
	Secret string
	// AckBaseURL is the public base for synthesized acknowledgement
	// links, e.g. "https://ops.example.com".
	AckBaseURL string
	Timeout    time.Duration
}

// Configured reports whether the sink can be used at all.
func (c SinkConfig) Configured() bool {
	return c.URL != ""
}

// Validate checks the sink configuration.
func (c SinkConfig) Validate() error {
	if c.URL == "" {
		return nil // unconfigured is a valid state, delivery is skipped
	}
	if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
		return fmt.Errorf("sink URL must be http(s)")
	}
	return nil
}

// Payload is the wire body posted to the sink. All strings are masked
// before they get here; the payload never carries raw secrets or
// unmasked PII.
type Payload struct {
	EventID     string            `json:"event_id"`
	Key         string            `json:"key"`
	State       string            `json:"state"`
	Severity    string            `json:"severity"`
	Summary     string            `json:"summary"`
	Signals     map[string]string `json:"signals,omitempty"`
	Actions     []string          `json:"actions,omitempty"`
	WindowFrom  time.Time         `json:"window_from"`
	WindowTo    time.Time         `json:"window_to"`
	WindowLabel string            `json:"window_label"`
	AckURL      string            `json:"ack_url,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}

// Sink posts payloads to the configured webhook endpoint.
type Sink struct {
	config     SinkConfig
	httpClient *http.Client
}

// NewSink creates a webhook sink client.
func NewSink(config SinkConfig) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sink config: %w", err)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sink{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Send posts one payload. Non-2xx responses are errors carrying the
// status and a bounded body excerpt.
func (s *Sink) Send(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Secret != "" {
		req.Header.Set("X-Opswatch-Signature", sign(s.config.Secret, body))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sink returned status %d: %s", resp.StatusCode, string(excerpt))
	}
	return nil
}

// sign computes the hex HMAC-SHA256 of the body under the shared secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ackURL synthesizes the acknowledgement link for an event.
func ackURL(base, eventID, token string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/api/v1/alerts/events/" + eventID + "/ack?token=" + token
}

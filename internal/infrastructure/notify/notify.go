// Package notify delivers release notifications as HMAC-signed JSON
// webhook posts. Each message is rendered through the embedded template
// catalog and shipped to the configured endpoint with retries. Delivery
// is advisory: the pipeline logs a lost message and moves on, it never
// fails a task over one.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/railhead-io/railhead/internal/domain/provider"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

const (
	eventName       = "release.notification"
	userAgent       = "Railhead-Webhook/1.0"
	headerEvent     = "X-Railhead-Event"
	headerChannel   = "X-Railhead-Channel"
	headerSignature = "X-Railhead-Signature"
)

// Ensure Messenger implements the Messaging capability.
var _ provider.Messaging = (*Messenger)(nil)

// Config configures the webhook messenger.
type Config struct {
	// Endpoint receives the signed JSON posts.
	Endpoint string
	// Secret signs the payload body. Empty disables signing.
	Secret string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// RetryAttempts is the total number of tries per message.
	RetryAttempts int
	// RetryInitialDelay is the backoff before the second attempt.
	RetryInitialDelay time.Duration
	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration
	// TemplatesPath points at a YAML catalog whose templates override
	// the embedded ones. Empty keeps the embedded catalog as is.
	TemplatesPath string
}

// DefaultConfig returns the default messenger configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		RetryAttempts:     3,
		RetryInitialDelay: 1 * time.Second,
		RetryMaxDelay:     10 * time.Second,
	}
}

// Payload is the JSON document posted to the webhook endpoint.
type Payload struct {
	// Event names the payload kind.
	Event string `json:"event"`
	// Timestamp is when the message was sent.
	Timestamp time.Time `json:"timestamp"`
	// Channel is the logical destination the message was addressed to.
	Channel string `json:"channel"`
	// Title is the message headline.
	Title string `json:"title"`
	// Text is the rendered message body.
	Text string `json:"text"`
	// Fields carries the message's structured details.
	Fields map[string]string `json:"fields,omitempty"`
}

// Messenger posts rendered messages to a webhook endpoint.
type Messenger struct {
	cfg     Config
	client  *http.Client
	catalog *Catalog
	retrier retry.Retry[struct{}]
	logger  *slog.Logger
}

// NewMessenger creates a messenger for the configured endpoint. Zero
// values in the config fall back to the defaults.
func NewMessenger(cfg Config) (*Messenger, error) {
	const op = "notify.NewMessenger"

	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, rherrors.Validation(op, "webhook endpoint cannot be empty")
	}

	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = def.RetryInitialDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	if cfg.TemplatesPath != "" {
		if err := catalog.LoadOverrides(cfg.TemplatesPath); err != nil {
			return nil, err
		}
	}

	return &Messenger{
		cfg:     cfg,
		client:  &http.Client{},
		catalog: catalog,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialDelay,
			MaxDelay:      cfg.RetryMaxDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   retryableDelivery,
		}),
		logger: slog.Default().With("component", "notify"),
	}, nil
}

// Catalog exposes the messenger's template catalog so deployments can
// register overrides.
func (m *Messenger) Catalog() *Catalog {
	return m.catalog
}

// Send renders the message and posts it, retrying transient failures.
func (m *Messenger) Send(ctx context.Context, msg provider.Message) error {
	const op = "notify.Send"

	text, err := m.catalog.Render(templateMessage, msg)
	if err != nil {
		return rherrors.ProviderFailureWrap(err, op, "failed to render message")
	}

	payload := Payload{
		Event:     eventName,
		Timestamp: time.Now().UTC(),
		Channel:   msg.Channel,
		Title:     msg.Title,
		Text:      text,
		Fields:    msg.Fields,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return rherrors.ProviderFailureWrap(err, op, "failed to marshal payload")
	}

	_, err = m.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.post(ctx, body, msg.Channel)
	})
	if err != nil {
		return rherrors.ProviderFailureWrap(err, op, fmt.Sprintf("failed to deliver message to %s", m.cfg.Endpoint))
	}

	m.logger.Debug("message delivered", "channel", msg.Channel, "title", msg.Title)
	return nil
}

// post performs a single delivery attempt.
func (m *Messenger) post(ctx context.Context, body []byte, channel string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerEvent, eventName)
	req.Header.Set(headerChannel, channel)
	for key, value := range m.cfg.Headers {
		req.Header.Set(key, value)
	}
	if m.cfg.Secret != "" {
		req.Header.Set(headerSignature, "sha256="+signPayload(body, m.cfg.Secret))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}
	return nil
}

// statusError reports a non-2xx webhook response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// retryableDelivery reports whether a delivery failure is worth another
// attempt. Client errors other than 429 are terminal; server errors,
// rate limiting, transport failures and attempt timeouts retry.
func retryableDelivery(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// signPayload creates an HMAC-SHA256 signature of the payload.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies a webhook signature. Receivers use it to
// validate that a payload came from this messenger.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := signPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/util"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// Message is one outgoing email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client posts messages to the email service.
type Client struct {
	baseURL    string
	from       string
	httpClient *http.Client
}

// NewClient creates an email service client. Outgoing requests carry the
// caller's trace context.
func NewClient(baseURL, from string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    from,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Send delivers msg. Any non-2xx answer is an error.
func (c *Client) Send(ctx context.Context, msg Message) error {
	ctx, span := util.StartSpan(ctx, "Mailer.Send", attribute.String("email.subject", msg.Subject))
	defer span.End()

	if msg.From == "" {
		msg.From = c.from
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("failed to marshal email: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return util.RecordError(span, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("email service unreachable: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return util.RecordError(span, fmt.Errorf("email service returned status %d", resp.StatusCode))
	}
	return nil
}

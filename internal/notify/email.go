package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmailDispatcher posts notification envelopes to the email edge
// service, which renders the HTML template for the kind and forwards
// it to the mail provider. The core never touches template content.
type EmailDispatcher struct {
	endpoint string
	client   *http.Client
}

// NewEmailDispatcher constructs an EmailDispatcher for the given
// endpoint URL.
func NewEmailDispatcher(endpoint string) *EmailDispatcher {
	return &EmailDispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch implements Dispatcher.
func (d *EmailDispatcher) Dispatch(ctx context.Context, msg Message) error {
	body, err := json.Marshal(NewEnvelope(msg))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email service returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

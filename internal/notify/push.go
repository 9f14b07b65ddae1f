package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"solana-autolink/internal/domain"
)

// Sender delivers one rendered payload to one endpoint.
type Sender interface {
	// Send returns permanent=true when the endpoint is gone for good and
	// should be deactivated rather than retried.
	Send(ctx context.Context, endpoint *domain.PushEndpoint, payload *PushPayload) (permanent bool, err error)
}

// HTTPSender posts payloads to the endpoint URL as JSON.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates an HTTPSender. client defaults to a 10s-timeout client.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{client: client}
}

var _ Sender = (*HTTPSender)(nil)

func (s *HTTPSender) Send(ctx context.Context, endpoint *domain.PushEndpoint, payload *PushPayload) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "86400")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("post to endpoint: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The subscription no longer exists on the push service.
		return true, fmt.Errorf("endpoint gone: status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("endpoint rejected payload: status %d", resp.StatusCode)
	}
}

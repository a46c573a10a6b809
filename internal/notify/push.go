// Package notify delivers push notifications to requester devices via the
// FCM legacy HTTP API. Delivery is always best-effort: callers log failures
// and move on.
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

// Notifier sends one notification to a device token.
type Notifier interface {
	Send(ctx context.Context, token, title, body string) error
}

// Nop is a Notifier that silently drops everything. Used when no server key
// is configured and in tests.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(ctx context.Context, token, title, body string) error { return nil }

// DefaultEndpoint is the FCM legacy HTTP send endpoint.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// FCMClient is a Notifier backed by the FCM legacy HTTP API.
type FCMClient struct {
	// Endpoint is the send URL; DefaultEndpoint when empty.
	Endpoint string
	// ServerKey authenticates the request ("key=<ServerKey>").
	ServerKey string
	// HTTP is the underlying client; a default with a 10s timeout is used
	// when nil.
	HTTP *http.Client
}

// NewFCMClient constructs an FCMClient against the default endpoint.
func NewFCMClient(serverKey string) *FCMClient {
	return &FCMClient{
		Endpoint:  DefaultEndpoint,
		ServerKey: serverKey,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmMessage struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Send posts one notification message. A non-200 response or a zero-success
// result is reported as an error.
func (c *FCMClient) Send(ctx context.Context, token, title, body string) error {
	if token == "" {
		return fmt.Errorf("empty device token")
	}
	payload, err := json.Marshal(fcmMessage{
		To:           token,
		Notification: fcmNotification{Title: title, Body: body},
	})
	if err != nil {
		return err
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.ServerKey)

	httpc := c.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("fcm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("fcm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fcm status %d", resp.StatusCode)
	}

	var out fcmResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("fcm decode: %w", err)
	}
	if out.Success == 0 {
		return fmt.Errorf("fcm delivery failed (failure=%d)", out.Failure)
	}
	return nil
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

const SendPath = "/notifications/send"

// Client forwards notifications to a remote relay.
type Client struct {
	url    string
	signer *standardwebhooks.Webhook
	http   *http.Client
}

// NewClient targets the relay at baseURL. Requests are signed when secret is set.
func NewClient(baseURL, secret string) (*Client, error) {
	c := &Client{
		url:  strings.TrimSuffix(baseURL, "/") + SendPath,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		wh, err := standardwebhooks.NewWebhookRaw([]byte(secret))
		if err != nil {
			return nil, err
		}
		c.signer = wh
	}
	return c, nil
}

func (c *Client) Deliver(ctx context.Context, n *Notification) error {
	err := n.Validate()
	if err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		msgID := "msg_" + uuid.New().String()
		now := time.Now()
		signature, err := c.signer.Sign(msgID, now, body)
		if err != nil {
			return fmt.Errorf("failed to sign relay request: %w", err)
		}
		req.Header.Set("webhook-id", msgID)
		req.Header.Set("webhook-timestamp", fmt.Sprintf("%d", now.Unix()))
		req.Header.Set("webhook-signature", signature)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach push relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

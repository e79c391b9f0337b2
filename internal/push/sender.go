package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Sender hands an encrypted payload to the subscription's push service.
type Sender interface {
	Send(ctx context.Context, sub *Subscription, payload []byte) error
}

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto address or https URL of the operator
	TTL        int
}

// WebPushSender signs requests with VAPID keys.
type WebPushSender struct {
	cfg    VAPIDConfig
	client webpush.HTTPClient
}

func NewWebPushSender(cfg VAPIDConfig) *WebPushSender {
	if cfg.TTL == 0 {
		cfg.TTL = 60 * 60 * 24
	}
	return &WebPushSender{cfg: cfg}
}

func (s *WebPushSender) Send(ctx context.Context, sub *Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		slog.Warn("push provider rejected notification", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return &ProviderError{StatusCode: resp.StatusCode, Endpoint: sub.Endpoint}
	}
	return nil
}

// GenerateVAPIDKeys returns a fresh base64url key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}

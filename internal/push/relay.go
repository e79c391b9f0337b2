package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

const maxBodyBytes = 64 << 10

// SubscriptionStore forgets endpoints the provider reported as gone.
type SubscriptionStore interface {
	DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error)
}

// Relay sends notifications and prunes dead subscriptions.
type Relay struct {
	sender   Sender
	store    SubscriptionStore
	verifier *standardwebhooks.Webhook
}

// NewRelay returns a relay. A non-empty secret makes ServeHTTP require a
// valid Standard Webhooks signature.
func NewRelay(sender Sender, store SubscriptionStore, secret string) (*Relay, error) {
	r := &Relay{sender: sender, store: store}
	if secret != "" {
		wh, err := standardwebhooks.NewWebhookRaw([]byte(secret))
		if err != nil {
			return nil, err
		}
		r.verifier = wh
	}
	return r, nil
}

func (r *Relay) Deliver(ctx context.Context, n *Notification) error {
	err := n.Validate()
	if err != nil {
		return err
	}

	payload, err := n.Payload()
	if err != nil {
		return err
	}

	err = r.sender.Send(ctx, n.Subscription, payload)
	if err == nil {
		return nil
	}

	if IsGone(err) && r.store != nil {
		removed, delErr := r.store.DeleteByEndpoint(ctx, n.Subscription.Endpoint)
		if delErr != nil {
			slog.Error("failed to delete expired push subscription", "error", delErr, "endpoint", n.Subscription.Endpoint)
		} else {
			slog.Info("deleted expired push subscription", "endpoint", n.Subscription.Endpoint, "removed", removed)
		}
	}
	return err
}

// ServeHTTP handles POST /notifications/send.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing required fields"})
		return
	}

	if r.verifier != nil {
		err = r.verifier.Verify(body, req.Header)
		if err != nil {
			slog.Warn("push relay rejected unsigned request", "error", err, "remote_addr", req.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
			return
		}
	}

	var n Notification
	err = json.Unmarshal(body, &n)
	if err != nil || n.Validate() != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing required fields"})
		return
	}

	err = r.Deliver(req.Context(), &n)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("failed to send push notification", "error", err, "endpoint", n.Subscription.Endpoint)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to send notification"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Package push delivers Web Push notifications. The Relay serves
// POST /notifications/send and can also be called in-process; the Client
// forwards the same request to a remote relay.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const DefaultIcon = "/icons/icon-192x192.png"

// Subscription mirrors the browser's PushSubscription JSON.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Notification is the relay request body.
type Notification struct {
	Subscription *Subscription `json:"subscription"`
	Title        string        `json:"title"`
	Body         string        `json:"body,omitempty"`
	Data         any           `json:"data,omitempty"`
}

// Payload is what the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Data  any    `json:"data,omitempty"`
}

var ErrMissingFields = errors.New("missing required fields")

func (n *Notification) Validate() error {
	if n.Subscription == nil || n.Subscription.Endpoint == "" || n.Title == "" {
		return ErrMissingFields
	}
	return nil
}

func (n *Notification) Payload() ([]byte, error) {
	return json.Marshal(Payload{
		Title: n.Title,
		Body:  n.Body,
		Icon:  DefaultIcon,
		Badge: DefaultIcon,
		Data:  n.Data,
	})
}

// ProviderError is a non-2xx answer from the push service.
type ProviderError struct {
	StatusCode int
	Endpoint   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("push provider returned %d", e.StatusCode)
}

// Gone reports whether the provider says the subscription no longer exists.
func (e *ProviderError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsGone reports whether err carries a provider 404 or 410.
func IsGone(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Gone()
}

// Dispatcher delivers one notification. Both Relay and Client implement it.
type Dispatcher interface {
	Deliver(ctx context.Context, n *Notification) error
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	err      error
	payloads [][]byte
}

func (f *fakeSender) Send(_ context.Context, _ *Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}

type fakeStore struct {
	deleted []string
}

func (f *fakeStore) DeleteByEndpoint(_ context.Context, endpoint string) (int64, error) {
	f.deleted = append(f.deleted, endpoint)
	return 1, nil
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, SendPath, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func validNotification() *Notification {
	return &Notification{
		Subscription: &Subscription{Endpoint: "https://push.example/abc", Keys: Keys{P256dh: "k", Auth: "a"}},
		Title:        "Someone mailroomed you",
		Body:         "bob: ping",
		Data:         map[string]any{"partnership_id": "p1"},
	}
}

func TestRelay_MissingFields(t *testing.T) {
	relay, err := NewRelay(&fakeSender{}, &fakeStore{}, "")
	require.NoError(t, err)

	tests := []struct {
		name string
		body any
	}{
		{"empty", map[string]any{}},
		{"no title", map[string]any{"subscription": map[string]any{"endpoint": "https://push.example/x"}}},
		{"no subscription", map[string]any{"title": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, relay, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Missing required fields"}`, rec.Body.String())
		})
	}
}

func TestRelay_Success(t *testing.T) {
	sender := &fakeSender{}
	relay, err := NewRelay(sender, &fakeStore{}, "")
	require.NoError(t, err)

	rec := post(t, relay, validNotification())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	require.Len(t, sender.payloads, 1)
	var payload Payload
	require.NoError(t, json.Unmarshal(sender.payloads[0], &payload))
	assert.Equal(t, "Someone mailroomed you", payload.Title)
	assert.Equal(t, "bob: ping", payload.Body)
	assert.Equal(t, DefaultIcon, payload.Icon)
	assert.Equal(t, DefaultIcon, payload.Badge)
	assert.Equal(t, map[string]any{"partnership_id": "p1"}, payload.Data)
}

func TestRelay_GoneSubscriptionIsDeleted(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		store := &fakeStore{}
		sender := &fakeSender{err: &ProviderError{StatusCode: status, Endpoint: "https://push.example/abc"}}
		relay, err := NewRelay(sender, store, "")
		require.NoError(t, err)

		rec := post(t, relay, validNotification())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Failed to send notification"}`, rec.Body.String())
		assert.Equal(t, []string{"https://push.example/abc"}, store.deleted)
	}
}

func TestRelay_OtherFailureKeepsSubscription(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{err: &ProviderError{StatusCode: http.StatusTooManyRequests}}
	relay, err := NewRelay(sender, store, "")
	require.NoError(t, err)

	rec := post(t, relay, validNotification())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, store.deleted)
}

func TestRelay_RequiresSignatureWhenSecretSet(t *testing.T) {
	relay, err := NewRelay(&fakeSender{}, &fakeStore{}, "relay-secret-for-tests")
	require.NoError(t, err)

	rec := post(t, relay, validNotification())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClient_SignedRoundTrip(t *testing.T) {
	sender := &fakeSender{}
	relay, err := NewRelay(sender, &fakeStore{}, "relay-secret-for-tests")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("POST "+SendPath, relay)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(srv.URL, "relay-secret-for-tests")
	require.NoError(t, err)
	require.NoError(t, client.Deliver(context.Background(), validNotification()))
	assert.Len(t, sender.payloads, 1)

	wrong, err := NewClient(srv.URL, "some-other-secret")
	require.NoError(t, err)
	assert.Error(t, wrong.Deliver(context.Background(), validNotification()))
	assert.Len(t, sender.payloads, 1)
}

func TestClient_RejectsInvalidNotification(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", "")
	require.NoError(t, err)

	err = client.Deliver(context.Background(), &Notification{Title: "no subscription"})
	assert.ErrorIs(t, err, ErrMissingFields)
}

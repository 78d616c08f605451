package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "orders@shop.test")
	err := c.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hi", Body: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", got.To)
	assert.Equal(t, "orders@shop.test", got.From)
	assert.Equal(t, "Hi", got.Subject)
}

func TestSendFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Send(context.Background(), Message{To: "x@example.com"})
	assert.ErrorContains(t, err, "502")
}

func TestSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, "").Send(context.Background(), Message{To: "x@example.com"})
	assert.ErrorContains(t, err, "unreachable")
}

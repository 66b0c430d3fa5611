package alerts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSlack_PostsBlocks(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	NewSlack(srv.URL, srv.Client(), testLogger).Notify(context.Background(), "Payment canceled",
		Field{Key: "orderId", Value: "ord-1"},
		Field{Key: "reason", Value: "admin_cancel"},
	)

	assert.Equal(t, "Payment canceled", got["text"])
	blocks := got["blocks"].([]any)
	require.Len(t, blocks, 2)

	fields := blocks[1].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "*orderId:*\nord-1", fields[0].(map[string]any)["text"])
}

func TestSlack_NoFieldsSingleBlock(t *testing.T) {
	msg := buildMessage("hello", nil)

	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, "mrkdwn", msg.Blocks[0].Text.Type)
}

func TestSlack_NoURLIsNoOp(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	NewSlack("", srv.Client(), testLogger).Notify(context.Background(), "ignored")
	assert.False(t, called)
}

func TestSlack_FailureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.NotPanics(t, func() {
		NewSlack(srv.URL, srv.Client(), testLogger).Notify(context.Background(), "boom")
	})
}

package webhookutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"render.completed"}`)

	signature := Sign(payload, "secret-1")

	assert.True(t, VerifySignature(payload, signature, "secret-1"))
	assert.False(t, VerifySignature(payload, signature, "secret-2"))
	assert.False(t, VerifySignature([]byte(`tampered`), signature, "secret-1"))
}

func TestInvokeSignsAndPosts(t *testing.T) {
	body := []byte(`{"event":"render.completed","data":{"renderId":"r1"}}`)

	var gotSignature, gotEvent, gotTimestamp string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotTimestamp = r.Header.Get(HeaderTimestamp)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := Invoke(context.Background(), server.Client(), server.URL, "render.completed", "topsecret", body)
	require.NoError(t, err)

	assert.Equal(t, Sign(body, "topsecret"), gotSignature)
	assert.Equal(t, "render.completed", gotEvent)
	_, err = time.Parse(time.RFC3339, gotTimestamp)
	assert.NoError(t, err)
}

func TestInvokeNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := Invoke(context.Background(), server.Client(), server.URL, "render.failed", "s", []byte(`{}`))
	assert.Error(t, err)
}

func TestInvokeWithRetriesEventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := InvokeWithRetries(context.Background(), server.Client(), server.URL, "render.completed", "s", []byte(`{}`), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvokeWithRetriesExhausts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := InvokeWithRetries(context.Background(), server.Client(), server.URL, "render.completed", "s", []byte(`{}`), 2)
	assert.Error(t, err)
}

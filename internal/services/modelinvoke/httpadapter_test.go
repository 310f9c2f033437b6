package modelinvoke

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(baseURL string) *HTTPAdapter {
	return NewHTTPAdapter(&config.GeneratorConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		TimeoutSeconds: 30,
	})
}

func TestInvokeCreateThenPoll(t *testing.T) {
	var gotAuth string
	var gotBody createRequest

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/generations", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(generationStatus{
			ID:     "gen-1",
			Status: "processing",
			URLs:   struct {
				Get string `json:"get"`
			}{Get: server.URL + "/v1/generations/gen-1"},
		})
	})
	mux.HandleFunc("/v1/generations/gen-1", func(w http.ResponseWriter, r *http.Request) {
		status := generationStatus{ID: "gen-1", Status: "succeeded"}
		status.Output.Url = "https://cdn.example.com/gen-1.png"
		status.Output.Key = "gen-1.png"
		json.NewEncoder(w).Encode(status)
	})

	adapter := newTestAdapter(server.URL)
	output, err := adapter.Invoke(context.Background(), Request{
		Prompt:      "a courtyard house",
		Quality:     types.QualityHigh,
		AspectRatio: "16:9",
		References: []types.ReferencePayload{
			{Data: []byte{0x89, 0x50}, MimeType: "image/png"},
		},
		ReferenceUrls: []string{"https://cdn.example.com/prev.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/gen-1.png", output.Url)
	assert.Equal(t, "gen-1.png", output.Key)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "a courtyard house", gotBody.Prompt)
	require.Len(t, gotBody.Images, 2)
	assert.Contains(t, gotBody.Images[0], "data:image/png;base64,")
	assert.Equal(t, "https://cdn.example.com/prev.png", gotBody.Images[1])
}

func TestInvokeBackendFailureIsPermanent(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/generations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generationStatus{
			ID:     "gen-2",
			Status: "processing",
			URLs:   struct {
				Get string `json:"get"`
			}{Get: server.URL + "/v1/generations/gen-2"},
		})
	})
	mux.HandleFunc("/v1/generations/gen-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generationStatus{ID: "gen-2", Status: "failed", Error: "nsfw content"})
	})

	adapter := newTestAdapter(server.URL)
	_, err := adapter.Invoke(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "nsfw content")
}

func TestInvokeRejectedRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.Invoke(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestInvokeServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.Invoke(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestInvokeUnreachableBackendIsTransient(t *testing.T) {
	adapter := newTestAdapter("http://127.0.0.1:1")
	_, err := adapter.Invoke(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

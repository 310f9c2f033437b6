package modelinvoke

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/types"
)

// HTTPAdapter talks to a remote generation backend over its prediction API:
// create the generation, then poll the returned status URL until it reaches
// a terminal state.
type HTTPAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPAdapter(cfg *config.GeneratorConfig) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type createRequest struct {
	Prompt      string   `json:"prompt"`
	Quality     string   `json:"quality"`
	AspectRatio string   `json:"aspect_ratio"`
	Images      []string `json:"images,omitempty"`
}

type generationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Output struct {
		Url string `json:"url"`
		Key string `json:"key"`
	} `json:"output"`
	URLs struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (a *HTTPAdapter) Invoke(ctx context.Context, req Request) (*Output, error) {
	gen, err := a.create(ctx, req)
	if err != nil {
		return nil, err
	}

	return a.poll(ctx, gen.URLs.Get)
}

func (a *HTTPAdapter) create(ctx context.Context, req Request) (*generationStatus, error) {
	images := make([]string, 0, len(req.References)+len(req.ReferenceUrls))
	for _, ref := range req.References {
		images = append(images, encodeReference(ref))
	}
	images = append(images, req.ReferenceUrls...)

	body, err := json.Marshal(createRequest{
		Prompt:      req.Prompt,
		Quality:     req.Quality,
		AspectRatio: req.AspectRatio,
		Images:      images,
	})
	if err != nil {
		return nil, NewError("failed to encode request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/generations", bytes.NewReader(body))
	if err != nil {
		return nil, NewError("failed to build request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError("backend unreachable", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewError(fmt.Sprintf("backend returned status %d", resp.StatusCode), true, nil)
	}
	if resp.StatusCode >= 400 {
		return nil, NewError(fmt.Sprintf("backend rejected request with status %d", resp.StatusCode), false, nil)
	}

	var gen generationStatus
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, NewError("failed to decode create response", false, err)
	}

	return &gen, nil
}

func (a *HTTPAdapter) poll(ctx context.Context, statusURL string) (*Output, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, NewError("invocation timed out", true, ctx.Err())
		case <-ticker.C:
		}

		gen, err := a.getStatus(ctx, statusURL)
		if err != nil {
			return nil, err
		}

		switch gen.Status {
		case "succeeded", "completed":
			if gen.Output.Url == "" {
				return nil, NewError("backend reported success with no output", false, nil)
			}
			return &Output{Url: gen.Output.Url, Key: gen.Output.Key}, nil
		case "failed", "canceled":
			return nil, NewError(fmt.Sprintf("generation failed: %s", gen.Error), false, nil)
		}
	}
}

func (a *HTTPAdapter) getStatus(ctx context.Context, statusURL string) (*generationStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, NewError("failed to build status request", false, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError("backend unreachable while polling", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewError(fmt.Sprintf("status poll failed (%d): %s", resp.StatusCode, body), resp.StatusCode >= 500, nil)
	}

	var gen generationStatus
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, NewError("failed to decode status response", false, err)
	}

	return &gen, nil
}

func encodeReference(ref types.ReferencePayload) string {
	return fmt.Sprintf("data:%s;base64,%s", ref.MimeType, base64.StdEncoding.EncodeToString(ref.Data))
}

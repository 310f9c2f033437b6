package webhookutil

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const (
	HeaderSignature = "X-Renderiq-Signature"
	HeaderEvent     = "X-Renderiq-Event"
	HeaderTimestamp = "X-Renderiq-Timestamp"
)

// Sign computes the hex HMAC-SHA256 of the raw request body.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func contains(arr []int, value int) bool {
	for _, v := range arr {
		if v == value {
			return true
		}
	}
	return false
}

// Invoke posts a signed JSON payload to url. The body must already be
// marshaled: the signature covers the exact bytes on the wire.
func Invoke(ctx context.Context, client *http.Client, url, event, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(body, secret))
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	successStatuses := []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent}
	if !contains(successStatuses, resp.StatusCode) {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}

// InvokeWithRetries retries with exponential backoff, starting at one second.
func InvokeWithRetries(ctx context.Context, client *http.Client, url, event, secret string, body []byte, maxAttempts int) error {
	var err error
	backOff := time.Second
	for i := 0; i < maxAttempts; i++ {
		err = Invoke(ctx, client, url, event, secret, body)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backOff):
			}
			backOff *= 2
			continue
		}

		return nil
	}

	return err
}

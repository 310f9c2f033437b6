package randutil

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

func RandomString(length int) (string, error) {
	key := make([]byte, length)

	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(key), nil
}

func MaskString(secret string, visibleStart, visibleEnd int) string {
	if len(secret) <= visibleStart+visibleEnd {
		return secret
	}

	start := secret[:visibleStart]
	end := secret[len(secret)-visibleEnd:]
	return start + strings.Repeat("*", len(secret)-(visibleStart+visibleEnd)) + end
}

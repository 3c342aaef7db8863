package adapters

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/smallbiznis/mediavault/internal/payment/domain"
)

// SignSHA512 returns the lowercase hex HMAC-SHA512 of payload.
func SignSHA512(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySHA512 compares signature with the HMAC of the raw payload in constant time.
func VerifySHA512(secret string, payload []byte, signature string) error {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if secret == "" || signature == "" {
		return domain.ErrInvalidSignature
	}
	expected := SignSHA512(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PayToken is a short-lived signed token binding one order identifier and an
// expiry. It authorizes the charge/check endpoints without a full operator
// session: the payload travels as base64url JSON, authenticated by an
// HMAC-SHA256 over the encoded payload, compared in constant time.

type payTokenPayload struct {
	OrderID   string `json:"order_id"`
	ExpiresAt int64  `json:"exp"`
}

// MintPayToken issues a token for orderID valid for ttl from now.
func MintPayToken(secret, orderID string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("pay token secret is required")
	}
	if orderID == "" {
		return "", fmt.Errorf("order id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(payTokenPayload{
		OrderID:   orderID,
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding pay token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signPayToken(secret, encoded), nil
}

// VerifyPayToken checks the token signature, expiry, and that the token is
// bound to orderID. Failures are indistinguishable to the caller on purpose.
func VerifyPayToken(secret, token, orderID string, now time.Time) error {
	bound, err := ParsePayToken(secret, token, now)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(bound), []byte(orderID)) != 1 {
		return fmt.Errorf("invalid pay token")
	}
	return nil
}

// ParsePayToken checks the token signature and expiry and returns the bound
// order identifier. Used where the caller presents only the token.
func ParsePayToken(secret, token string, now time.Time) (string, error) {
	if secret == "" || token == "" {
		return "", fmt.Errorf("invalid pay token")
	}

	encoded, mac, ok := strings.Cut(token, ".")
	if !ok {
		return "", fmt.Errorf("invalid pay token")
	}

	expected := signPayToken(secret, encoded)
	if subtle.ConstantTimeCompare([]byte(mac), []byte(expected)) != 1 {
		return "", fmt.Errorf("invalid pay token")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid pay token")
	}
	var payload payTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("invalid pay token")
	}

	if now.Unix() >= payload.ExpiresAt {
		return "", fmt.Errorf("invalid pay token")
	}
	if payload.OrderID == "" {
		return "", fmt.Errorf("invalid pay token")
	}
	return payload.OrderID, nil
}

func signPayToken(secret, encodedPayload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

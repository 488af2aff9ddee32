// Package signature signs and verifies webhook payloads with HMAC-SHA256.
// Signatures travel as "v1=<hex digest>"; the version prefix leaves room to
// rotate the scheme without breaking verification of in-flight deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const versionPrefix = "v1="

var (
	// ErrMissingSignature indicates the signature header was empty
	ErrMissingSignature = errors.New("signature is missing")

	// ErrMalformedSignature indicates the signature lacks the v1= scheme or a valid hex digest
	ErrMalformedSignature = errors.New("signature is malformed")

	// ErrSignatureMismatch indicates the digest does not match the payload
	ErrSignatureMismatch = errors.New("signature does not match payload")
)

// Sign computes the versioned HMAC-SHA256 signature of the payload.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return versionPrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the payload in constant time.
func Verify(secret, payload []byte, received string) error {
	if received == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(received, versionPrefix) {
		return ErrMalformedSignature
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(received, versionPrefix))
	if err != nil {
		return ErrMalformedSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(digest, mac.Sum(nil)) {
		return ErrSignatureMismatch
	}
	return nil
}

package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("test-webhook-secret")
	payload := []byte(`{"type":"checkout.updated","data":{"id":"co_1"}}`)

	t.Run("round trip verifies", func(t *testing.T) {
		sig := Sign(secret, payload)
		assert.True(t, strings.HasPrefix(sig, "v1="))
		assert.NoError(t, Verify(secret, payload, sig))
	})

	t.Run("missing signature", func(t *testing.T) {
		err := Verify(secret, payload, "")
		assert.ErrorIs(t, err, ErrMissingSignature)
	})

	t.Run("missing version prefix", func(t *testing.T) {
		sig := Sign(secret, payload)
		err := Verify(secret, payload, strings.TrimPrefix(sig, "v1="))
		assert.ErrorIs(t, err, ErrMalformedSignature)
	})

	t.Run("non hex digest", func(t *testing.T) {
		err := Verify(secret, payload, "v1=not-hex!")
		assert.ErrorIs(t, err, ErrMalformedSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := Sign(secret, payload)
		err := Verify(secret, []byte(`{"type":"checkout.updated","data":{"id":"co_2"}}`), sig)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("wrong secret", func(t *testing.T) {
		sig := Sign([]byte("other-secret"), payload)
		err := Verify(secret, payload, sig)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("signatures are deterministic", func(t *testing.T) {
		require.Equal(t, Sign(secret, payload), Sign(secret, payload))
	})
}

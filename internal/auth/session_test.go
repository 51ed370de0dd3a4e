package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSignerRoundTrip(t *testing.T) {
	signer := NewSessionSigner("session-secret", 30*time.Minute)

	token, err := signer.Issue("ps_abc", 42)
	require.NoError(t, err)

	orderID, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), orderID)
}

func TestSessionSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSessionSigner("session-secret", -1*time.Minute)

	token, err := signer.Issue("ps_abc", 42)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionSignerRejectsForeignSecret(t *testing.T) {
	signer := NewSessionSigner("session-secret", 30*time.Minute)
	other := NewSessionSigner("other-secret", 30*time.Minute)

	token, err := other.Issue("ps_abc", 42)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionSignerRejectsGarbage(t *testing.T) {
	signer := NewSessionSigner("session-secret", 30*time.Minute)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := signer.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	}
}

package returntoken

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := NewCodec("return-secret")

	cases := []struct {
		formID  int64
		orderID int64
	}{
		{1, 1},
		{3, 42},
		{128, 981237},
	}

	for _, tc := range cases {
		token := codec.Issue(tc.formID, tc.orderID)
		formID, orderID, err := codec.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, tc.formID, formID)
		assert.Equal(t, tc.orderID, orderID)
	}
}

func TestVerifyRejectsBitFlips(t *testing.T) {
	codec := NewCodec("return-secret")
	token := codec.Issue(3, 42)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	for i := range raw {
		flipped := make([]byte, len(raw))
		copy(flipped, raw)
		flipped[i] ^= 0x01

		_, _, err := codec.Verify(base64.StdEncoding.EncodeToString(flipped))
		assert.ErrorIs(t, err, ErrInvalid, "flipping byte %d should invalidate the token", i)
	}
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	codec := NewCodec("return-secret")

	cases := []string{
		"",
		"not base64 at all!!!",
		base64.StdEncoding.EncodeToString([]byte("ids=3|42")),            // no hash
		base64.StdEncoding.EncodeToString([]byte("garbage&hash=abcdef")), // bad prefix + tag
	}
	for _, token := range cases {
		_, _, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalid, "token %q should be invalid", token)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewCodec("secret-a")
	verifier := NewCodec("secret-b")

	_, _, err := verifier.Verify(issuer.Issue(3, 42))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsNonNumericIdentifiers(t *testing.T) {
	codec := NewCodec("return-secret")

	// Hand-build a correctly signed token with non-numeric ids.
	idsQuery := "ids=abc|def"
	token := base64.StdEncoding.EncodeToString([]byte(idsQuery + "&hash=" + codec.tag(idsQuery)))

	_, _, err := codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
)

// Verifier validates that an inbound webhook genuinely originated from the
// processor. The signature header has the form "t=<timestamp>,s=<hex>";
// the signed payload is "<timestamp>.<raw body>" under HMAC-SHA256.
type Verifier struct {
	secret string
	log    *logger.Logger
}

func NewVerifier(secret string, log *logger.Logger) *Verifier {
	return &Verifier{secret: secret, log: log}
}

// Verify is a pure predicate: it rejects on any missing or malformed input
// and logs the rejection reason. The secret and the expected signature are
// never logged.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	if v.secret == "" {
		v.log.LogSecurity("WEBHOOK_SIGNATURE", "Signing secret is not configured")
		return false
	}

	if signatureHeader == "" {
		v.log.LogSecurity("WEBHOOK_SIGNATURE", "Missing signature header")
		return false
	}

	timestamp, sig, ok := parseHeader(signatureHeader)
	if !ok {
		v.log.LogSecurity("WEBHOOK_SIGNATURE", "Malformed signature header")
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, rawBody)
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal keeps the comparison constant-time.
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		v.log.LogSecurity("WEBHOOK_SIGNATURE", "Invalid signature")
		return false
	}

	return true
}

// parseHeader extracts the t and s values from a comma-separated key=value
// header. Unknown keys are ignored; missing t or s fails the parse.
func parseHeader(header string) (timestamp, sig string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return "", "", false
		}
		switch key {
		case "t":
			timestamp = value
		case "s":
			sig = value
		}
	}
	if timestamp == "" || sig == "" {
		return "", "", false
	}
	return timestamp, sig, true
}

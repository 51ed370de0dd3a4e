package returntoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is returned for any token that fails decoding, structural
// validation, or the integrity check. Callers treat all three the same way:
// silently ignore the return parameter.
var ErrInvalid = errors.New("invalid return token")

// Codec issues and verifies the tamper-evident tokens embedded in return
// redirect URLs. The browser redirect channel carries no transport-level
// authenticity of its own, so the token carries its own integrity tag.
//
// Token layout: base64("ids=<form_id>|<order_id>&hash=<hex hmac>") where the
// hash covers the un-encoded "ids=..." query fragment.
type Codec struct {
	secret string
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: secret}
}

// Issue builds a return token for the given form and order.
func (c *Codec) Issue(formID, orderID int64) string {
	idsQuery := fmt.Sprintf("ids=%d|%d", formID, orderID)
	signed := idsQuery + "&hash=" + c.tag(idsQuery)
	return base64.StdEncoding.EncodeToString([]byte(signed))
}

// Verify decodes a token and returns the form and order identifiers it
// references. Any mismatch, malformed structure, or decode failure yields
// ErrInvalid.
func (c *Codec) Verify(token string) (formID, orderID int64, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, 0, ErrInvalid
	}

	idsQuery, tag, found := strings.Cut(string(raw), "&hash=")
	if !found {
		return 0, 0, ErrInvalid
	}

	if !hmac.Equal([]byte(c.tag(idsQuery)), []byte(tag)) {
		return 0, 0, ErrInvalid
	}

	ids, found := strings.CutPrefix(idsQuery, "ids=")
	if !found {
		return 0, 0, ErrInvalid
	}

	formPart, orderPart, found := strings.Cut(ids, "|")
	if !found {
		return 0, 0, ErrInvalid
	}

	formID, err = strconv.ParseInt(formPart, 10, 64)
	if err != nil {
		return 0, 0, ErrInvalid
	}
	orderID, err = strconv.ParseInt(orderPart, 10, 64)
	if err != nil {
		return 0, 0, ErrInvalid
	}

	return formID, orderID, nil
}

func (c *Codec) tag(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

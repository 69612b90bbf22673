// Package signature provides HMAC-SHA256 webhook signing and verification.
//
// The signature covers the exact outbound request body and is carried in the
// X-Webhook-Signature header as lowercase hex, allowing the receiving
// endpoint to authenticate the sender.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 signature of body under secret and returns
// it as a lowercase hex string. Pure function; no state.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

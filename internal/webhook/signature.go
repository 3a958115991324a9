// Package webhook authenticates and applies on-chain publication
// notifications delivered over two independent provider channels.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyAlchemy checks the Alchemy scheme: hex(HMAC-SHA256(key, body))
// supplied in a single signature header.
func VerifyAlchemy(signingKey string, body []byte, signatureHeader string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || signingKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signingKey))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

// VerifyQuickNode checks the QuickNode scheme:
// hex(HMAC-SHA256(token, nonce || timestamp || body)). All three headers are
// mandatory; a missing one is an authentication failure, not a decode
// failure.
func VerifyQuickNode(securityToken string, nonce, timestamp, signatureHeader string, body []byte) bool {
	sig := strings.TrimSpace(signatureHeader)
	if securityToken == "" || nonce == "" || timestamp == "" || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(securityToken))
	_, _ = mac.Write([]byte(nonce))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

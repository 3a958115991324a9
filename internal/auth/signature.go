// Package auth verifies wallet ownership proofs and issues session tokens.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Proof is a per-request ownership claim over a free-text message. The
// message carries its own issuance timestamp, either as a leading unix value
// or as an "Issued At:" line. Proofs are ephemeral and never persisted.
type Proof struct {
	Message   string
	Signature string
	Address   string
}

type Authenticator struct {
	window time.Duration
	now    func() time.Time
}

func NewAuthenticator(window time.Duration) *Authenticator {
	return &Authenticator{window: window, now: time.Now}
}

// Authenticate reports whether the signature recovers to the claimed address
// and the embedded timestamp is within the freshness window. Malformed input
// of any kind reports false.
func (a *Authenticator) Authenticate(proof Proof) bool {
	if proof.Address == "" || proof.Message == "" || proof.Signature == "" {
		return false
	}
	issuedAt, ok := messageTimestamp(proof.Message)
	if !ok {
		return false
	}
	delta := a.now().Sub(issuedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > a.window {
		return false
	}
	recovered, err := RecoverPersonalSign(proof.Message, proof.Signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, proof.Address)
}

// messageTimestamp extracts the issuance time from a proof message. The first
// whitespace-delimited token is tried as a unix timestamp (seconds or
// milliseconds); otherwise an "Issued At:" line is parsed as RFC 3339 or unix.
func messageTimestamp(message string) (time.Time, bool) {
	fields := strings.Fields(message)
	if len(fields) > 0 {
		if ts, ok := parseUnix(fields[0]); ok {
			return ts, true
		}
	}
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "Issued At:") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(trimmed, "Issued At:"))
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			return ts, true
		}
		if ts, ok := parseUnix(value); ok {
			return ts, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func parseUnix(value string) (time.Time, bool) {
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return time.Time{}, false
	}
	// Values past the year 33658 in seconds are taken as milliseconds.
	if parsed > 1_000_000_000_000 {
		return time.UnixMilli(parsed), true
	}
	return time.Unix(parsed, 0), true
}

// RecoverPersonalSign recovers the lowercase signer address of an
// eth_personalSign style signature over message.
func RecoverPersonalSign(message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}
	digest := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
	return recoverAddress(digest, sig)
}

func decodeSignature(signature string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(signature), "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, errors.New("signature must be 65 bytes")
	}
	// Wallets emit V as 27/28; secp256k1 recovery wants 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}
	return sig, nil
}

func recoverAddress(digest, sig []byte) (string, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

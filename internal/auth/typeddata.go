package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedProof is the structured ownership claim: an EIP-712 payload whose
// message carries explicit nonce and issuedAt fields under a domain-separated
// signing scheme.
type TypedProof struct {
	TypedData apitypes.TypedData
	Signature string
	Address   string
}

// Nonce returns the payload's nonce field, empty when absent.
func (p TypedProof) Nonce() string {
	value, _ := p.TypedData.Message["nonce"].(string)
	return value
}

// AuthenticateTyped verifies a domain-separated typed-data signature. Unlike
// the plain-message path the freshness check is one-sided: a timestamp from
// the future is rejected outright.
func (a *Authenticator) AuthenticateTyped(proof TypedProof) bool {
	if proof.Address == "" || proof.Signature == "" {
		return false
	}
	if proof.Nonce() == "" {
		return false
	}
	issuedAt, ok := typedTimestamp(proof.TypedData.Message["issuedAt"])
	if !ok {
		return false
	}
	elapsed := a.now().Sub(issuedAt)
	if elapsed < 0 || elapsed > a.window {
		return false
	}
	digest, _, err := apitypes.TypedDataAndHash(proof.TypedData)
	if err != nil {
		return false
	}
	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return false
	}
	recovered, err := recoverAddress(digest, sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, proof.Address)
}

func typedTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case float64:
		if v <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}

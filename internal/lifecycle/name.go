package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveName maps an address and proof salt to a deterministic record name.
// Replaying the same signed intent derives the same name, which the mutation
// paths reject as a duplicate.
func DeriveName(address, salt string) string {
	digest := crypto.Keccak256([]byte(strings.ToLower(address)), []byte{0}, []byte(salt))
	return hex.EncodeToString(digest[:16])
}

// ContentAddress derives the content-addressed identifier for draft bytes.
func ContentAddress(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

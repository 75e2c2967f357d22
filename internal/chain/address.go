package chain

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

const addressSalt = "tetf-demo-wallet-v1"

// DeriveAddress deterministically derives a 20-byte hex wallet address for an
// owner. The demo has no external key custody, so the address is a digest of
// the owner id rather than a public key.
func DeriveAddress(ownerID string) string {
	digest := sha3.Sum256([]byte(addressSalt + ":" + ownerID))
	return "0x" + hex.EncodeToString(digest[12:])
}

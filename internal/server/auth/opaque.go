package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// OpaqueTokenBytes is the entropy of refresh, verification and reset secrets.
const OpaqueTokenBytes = 48

// GenerateOpaque returns a fresh hex-encoded secret of OpaqueTokenBytes
// random bytes.
func GenerateOpaque() (string, error) {
	return common.MakeRandHexString(OpaqueTokenBytes)
}

// HashOpaque returns the hex sha256 digest under which a secret is stored
// and looked up. Secrets are random and single use, so no salt is needed.
func HashOpaque(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

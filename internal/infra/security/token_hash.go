package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/proyectoio2/back/internal/core/port"
)

// TokenDigester computes the keyed digest under which consumed tokens are
// stored, so the ledger never holds raw bearer tokens.
type TokenDigester struct {
	key     []byte
	primary func(key []byte) (hash.Hash, error)
}

// NewTokenDigester keys the digest with secret, truncated to the 64 byte BLAKE2b key limit.
func NewTokenDigester(secret string) *TokenDigester {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &TokenDigester{key: key, primary: blake2b.New256}
}

// Digest returns the lowercase hex keyed BLAKE2b-256 of token, or HMAC-SHA256
// when BLAKE2b cannot be initialised.
func (d *TokenDigester) Digest(token string) string {
	h, err := d.primary(d.key)
	if err != nil {
		h = hmac.New(sha256.New, d.key)
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

var _ port.TokenDigester = (*TokenDigester)(nil)

package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
)

const (
	// PublicKeySize is the byte length of an sr25519 public key.
	PublicKeySize = 32
	// SignatureSize is the byte length of an sr25519 signature.
	SignatureSize = 64
)

// signingContext is the transcript label Substrate signers use. A signature
// produced under any other context never verifies here.
var signingContext = []byte("substrate")

// PublicKey is an sr25519 public key. The gateway holds exactly one, the
// OCW's, captured at construction time.
type PublicKey struct {
	key *schnorrkel.PublicKey
	raw [PublicKeySize]byte
}

// ParsePublicKey decodes a hex-encoded 32-byte public key. A 0x prefix is
// accepted and ignored.
func ParsePublicKey(s string) (*PublicKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	return PublicKeyFromBytes(raw)
}

// PublicKeyFromBytes builds a PublicKey from its raw 32-byte encoding.
func PublicKeyFromBytes(raw []byte) (*PublicKey, error) {
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	var fixed [PublicKeySize]byte
	copy(fixed[:], raw)
	key := &schnorrkel.PublicKey{}
	if err := key.Decode(fixed); err != nil {
		return nil, fmt.Errorf("decode public key point: %w", err)
	}
	return &PublicKey{key: key, raw: fixed}, nil
}

// Bytes returns a copy of the raw 32-byte encoding.
func (p *PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, p.raw[:])
	return out
}

// Hex returns the 0x-prefixed hex encoding of the key.
func (p *PublicKey) Hex() string {
	return "0x" + hex.EncodeToString(p.raw[:])
}

// Verify reports whether sig is a valid sr25519 signature over exactly msg
// under the Substrate signing context. Malformed signatures (wrong length,
// undecodable point) are invalid, never an error: callers must not be able
// to distinguish a broken signature from a forged one.
func (p *PublicKey) Verify(msg, sig []byte) bool {
	if p == nil || p.key == nil || len(sig) != SignatureSize {
		return false
	}
	var fixed [SignatureSize]byte
	copy(fixed[:], sig)
	signature := &schnorrkel.Signature{}
	if err := signature.Decode(fixed); err != nil {
		return false
	}
	ok, err := p.key.Verify(signature, schnorrkel.NewSigningContext(signingContext, msg))
	return err == nil && ok
}

package solana

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key in bytes
const PublicKeyLength = 32

// ErrInvalidPublicKey is returned when a string does not decode to a 32-byte key
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a Solana account address
type PublicKey [PublicKeyLength]byte

// Well-known program and sysvar addresses
var (
	ProfilePictureProgramID = MustParsePublicKey("6UQLqKYWqErHqdsX6WtANQsMmvfKtWNuSSRj6ybg5in3")
	TokenMetadataProgramID  = MustParsePublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	SystemProgramID         = PublicKey{}
	SysvarClockPubkey       = MustParsePublicKey("SysvarC1ock11111111111111111111111111111111")
)

// ParsePublicKey decodes a base58 encoded address
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPublicKey, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePublicKey is like ParsePublicKey but panics on error.
// Only use it for compile-time constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies b into a PublicKey
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 representation
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the key bytes
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, pk[:])
	return b
}

// IsZero returns true for the all-zero key (the system program)
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Equals compares two keys
func (pk PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// MarshalJSON encodes the key as a base58 string
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes a base58 string
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

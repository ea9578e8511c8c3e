package layout

import (
	"encoding/binary"
	"errors"
	"fmt"

	"pfpgofer/internal/solana"
)

// ProfilePictureSize is the exact on-chain size of a profile picture record:
// isInitialized(1) + version(1) + owner(32) + nftMint(32) + nftTokenAccount(32) + updatedAt(8)
const ProfilePictureSize = 1 + 1 + 3*solana.PublicKeyLength + 8

// ErrSizeMismatch is the sentinel wrapped by SizeMismatchError
var ErrSizeMismatch = errors.New("invalid account size")

// SizeMismatchError reports a record whose length differs from its layout
type SizeMismatchError struct {
	Expected int
	Got      int
}

// Error implements the error interface
func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("invalid account size. Expected %d, got %d", e.Expected, e.Got)
}

// Unwrap allows errors.Is(err, ErrSizeMismatch)
func (e *SizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}

// ProfilePicture is the record stored at an owner's derived address
type ProfilePicture struct {
	IsInitialized   uint8            `json:"isInitialized"`
	Version         uint8            `json:"version"`
	Owner           solana.PublicKey `json:"owner"`
	NFTMint         solana.PublicKey `json:"nftMint"`
	NFTTokenAccount solana.PublicKey `json:"nftTokenAccount"`
	UpdatedAt       uint64           `json:"updatedAt"`
}

// DecodeProfilePicture decodes a profile picture record. The input must be exactly
// ProfilePictureSize bytes long.
func DecodeProfilePicture(data []byte) (*ProfilePicture, error) {
	if len(data) != ProfilePictureSize {
		return nil, &SizeMismatchError{Expected: ProfilePictureSize, Got: len(data)}
	}

	r := reader{data: data}
	rec := &ProfilePicture{
		IsInitialized: r.u8(),
		Version:       r.u8(),
	}
	rec.Owner = r.pubkey()
	rec.NFTMint = r.pubkey()
	rec.NFTTokenAccount = r.pubkey()
	rec.UpdatedAt = r.u64()

	return rec, r.err
}

// EncodeProfilePicture is the inverse of DecodeProfilePicture
func EncodeProfilePicture(rec *ProfilePicture) []byte {
	buf := make([]byte, 0, ProfilePictureSize)
	buf = append(buf, rec.IsInitialized, rec.Version)
	buf = append(buf, rec.Owner[:]...)
	buf = append(buf, rec.NFTMint[:]...)
	buf = append(buf, rec.NFTTokenAccount[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, rec.UpdatedAt)
	return buf
}

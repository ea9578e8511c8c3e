// Package instruction builds the profile picture program instructions that set
// and remove an owner's profile picture. Signing and submission are left to the
// caller's wallet.
package instruction

import (
	"fmt"

	"pfpgofer/internal/solana"
)

// Instruction discriminators of the profile picture program
const (
	SetProfilePictureTag    uint8 = 0
	RemoveProfilePictureTag uint8 = 1
)

// AccountMeta describes one account passed to an instruction
type AccountMeta struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Instruction is an unsigned program instruction
type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"keys"`
	Data      []byte           `json:"data"`
}

// AddressDeriver computes the addresses an instruction references
type AddressDeriver interface {
	ProfilePicture(owner solana.PublicKey) (solana.PublicKey, error)
	Metadata(mint solana.PublicKey) (solana.PublicKey, error)
	ProfileProgram() solana.PublicKey
}

// Builder creates instructions for one program deployment
type Builder struct {
	deriver AddressDeriver
}

// NewBuilder creates a Builder
func NewBuilder(deriver AddressDeriver) *Builder {
	return &Builder{deriver: deriver}
}

// SetProfilePicture points owner's profile picture at the NFT mint held in tokenAccount
func (b *Builder) SetProfilePicture(owner, mint, tokenAccount solana.PublicKey) (*Instruction, error) {
	record, err := b.deriver.ProfilePicture(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to derive profile picture address: %w", err)
	}
	metadata, err := b.deriver.Metadata(mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive metadata address: %w", err)
	}

	return &Instruction{
		ProgramID: b.deriver.ProfileProgram(),
		Accounts: []AccountMeta{
			{PublicKey: owner, IsSigner: true},
			{PublicKey: record, IsWritable: true},
			{PublicKey: mint},
			{PublicKey: tokenAccount},
			{PublicKey: metadata},
			{PublicKey: solana.SysvarClockPubkey},
			{PublicKey: solana.SystemProgramID},
		},
		Data: []byte{SetProfilePictureTag},
	}, nil
}

// RemoveProfilePicture clears owner's profile picture
func (b *Builder) RemoveProfilePicture(owner solana.PublicKey) (*Instruction, error) {
	record, err := b.deriver.ProfilePicture(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to derive profile picture address: %w", err)
	}

	return &Instruction{
		ProgramID: b.deriver.ProfileProgram(),
		Accounts: []AccountMeta{
			{PublicKey: owner, IsSigner: true},
			{PublicKey: record, IsWritable: true},
		},
		Data: []byte{RemoveProfilePictureTag},
	}, nil
}

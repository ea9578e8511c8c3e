package address

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"pfpgofer/internal/solana"
)

const (
	// ProfilePicturePrefix is the first seed of a profile picture record address
	ProfilePicturePrefix = "nft_profile"
	// MetadataPrefix is the first seed of a Metaplex metadata address
	MetadataPrefix = "metadata"

	DefaultCacheSize = 10000
)

type cacheKey struct {
	kind byte
	key  solana.PublicKey
}

const (
	kindProfilePicture byte = iota
	kindMetadata
)

// Deriver computes program derived addresses for owners and mints.
// Results are pure functions of the input and are memoized in an LRU.
type Deriver struct {
	profileProgram  solana.PublicKey
	metadataProgram solana.PublicKey
	cache           *lru.Cache[cacheKey, solana.PublicKey]
}

// NewDeriver creates a Deriver for the mainnet program ids.
// A non-positive cacheSize disables memoization.
func NewDeriver(cacheSize int) (*Deriver, error) {
	return NewDeriverWithPrograms(solana.ProfilePictureProgramID, solana.TokenMetadataProgramID, cacheSize)
}

// NewDeriverWithPrograms creates a Deriver for custom program ids (devnet forks, tests)
func NewDeriverWithPrograms(profileProgram, metadataProgram solana.PublicKey, cacheSize int) (*Deriver, error) {
	d := &Deriver{
		profileProgram:  profileProgram,
		metadataProgram: metadataProgram,
	}
	if cacheSize > 0 {
		cache, err := lru.New[cacheKey, solana.PublicKey](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create derivation cache: %w", err)
		}
		d.cache = cache
	}
	return d, nil
}

// ProfilePicture returns the address of the owner's profile picture record
func (d *Deriver) ProfilePicture(owner solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(cacheKey{kind: kindProfilePicture, key: owner}, func() (solana.PublicKey, uint8, error) {
		return solana.FindProgramAddress([][]byte{
			[]byte(ProfilePicturePrefix),
			owner[:],
		}, d.profileProgram)
	})
}

// Metadata returns the Metaplex metadata account address of a mint
func (d *Deriver) Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(cacheKey{kind: kindMetadata, key: mint}, func() (solana.PublicKey, uint8, error) {
		return solana.FindProgramAddress([][]byte{
			[]byte(MetadataPrefix),
			d.metadataProgram[:],
			mint[:],
		}, d.metadataProgram)
	})
}

// ProfileProgram returns the profile picture program id
func (d *Deriver) ProfileProgram() solana.PublicKey {
	return d.profileProgram
}

// MetadataProgram returns the token metadata program id
func (d *Deriver) MetadataProgram() solana.PublicKey {
	return d.metadataProgram
}

// Len returns the number of memoized derivations
func (d *Deriver) Len() int {
	if d.cache == nil {
		return 0
	}
	return d.cache.Len()
}

func (d *Deriver) derive(key cacheKey, find func() (solana.PublicKey, uint8, error)) (solana.PublicKey, error) {
	if d.cache != nil {
		if pk, ok := d.cache.Get(key); ok {
			return pk, nil
		}
	}

	pk, _, err := find()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive address for %s: %w", key.key, err)
	}

	if d.cache != nil {
		d.cache.Add(key, pk)
	}
	return pk, nil
}

package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProgramAddress_Deterministic(t *testing.T) {
	owner := TokenMetadataProgramID
	seeds := [][]byte{[]byte("nft_profile"), owner[:]}

	first, bump, err := FindProgramAddress(seeds, ProfilePictureProgramID)
	require.NoError(t, err)

	second, bump2, err := FindProgramAddress(seeds, ProfilePictureProgramID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, bump, bump2)
	assert.False(t, IsOnCurve(first[:]))

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), ProfilePictureProgramID)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestFindProgramAddress_DifferentSeeds(t *testing.T) {
	a, _, err := FindProgramAddress([][]byte{[]byte("nft_profile"), SysvarClockPubkey[:]}, ProfilePictureProgramID)
	require.NoError(t, err)
	b, _, err := FindProgramAddress([][]byte{[]byte("nft_profile"), TokenMetadataProgramID[:]}, ProfilePictureProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCreateProgramAddress_SeedTooLong(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, ProfilePictureProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLengthExceeded)
}

func TestIsOnCurve_PublicKeysAreOnCurve(t *testing.T) {
	// Regular wallet keys are ed25519 points
	assert.True(t, IsOnCurve(ProfilePictureProgramID[:]))
}

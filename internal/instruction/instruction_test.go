package instruction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pfpgofer/internal/address"
	"pfpgofer/internal/solana"
)

var (
	testOwner = solana.MustParsePublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testMint  = solana.MustParsePublicKey("HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH")
	testToken = solana.MustParsePublicKey("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
)

func newTestBuilder(t *testing.T) (*Builder, *address.Deriver) {
	t.Helper()
	d, err := address.NewDeriver(16)
	require.NoError(t, err)
	return NewBuilder(d), d
}

func TestSetProfilePicture(t *testing.T) {
	b, d := newTestBuilder(t)

	ix, err := b.SetProfilePicture(testOwner, testMint, testToken)
	require.NoError(t, err)

	record, _ := d.ProfilePicture(testOwner)
	metadata, _ := d.Metadata(testMint)

	assert.Equal(t, solana.ProfilePictureProgramID, ix.ProgramID)
	assert.Equal(t, []byte{0}, ix.Data)
	assert.Equal(t, []AccountMeta{
		{PublicKey: testOwner, IsSigner: true},
		{PublicKey: record, IsWritable: true},
		{PublicKey: testMint},
		{PublicKey: testToken},
		{PublicKey: metadata},
		{PublicKey: solana.SysvarClockPubkey},
		{PublicKey: solana.SystemProgramID},
	}, ix.Accounts)
}

func TestRemoveProfilePicture(t *testing.T) {
	b, d := newTestBuilder(t)

	ix, err := b.RemoveProfilePicture(testOwner)
	require.NoError(t, err)

	record, _ := d.ProfilePicture(testOwner)
	assert.Equal(t, []byte{1}, ix.Data)
	require.Len(t, ix.Accounts, 2)
	assert.Equal(t, AccountMeta{PublicKey: testOwner, IsSigner: true}, ix.Accounts[0])
	assert.Equal(t, AccountMeta{PublicKey: record, IsWritable: true}, ix.Accounts[1])
}

func TestInstructionJSON(t *testing.T) {
	b, _ := newTestBuilder(t)
	ix, err := b.RemoveProfilePicture(testOwner)
	require.NoError(t, err)

	data, err := json.Marshal(ix)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, solana.ProfilePictureProgramID.String(), decoded["programId"])
	assert.Equal(t, "AQ==", decoded["data"])
	keys := decoded["keys"].([]interface{})
	assert.Equal(t, testOwner.String(), keys[0].(map[string]interface{})["pubkey"])
}

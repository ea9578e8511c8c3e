package layout

import (
	"encoding/binary"
	"fmt"
	"strings"

	"pfpgofer/internal/solana"
)

// Metaplex account key for a v1 metadata account
const MetadataV1Key uint8 = 4

// Metadata is the prefix of a Metaplex token metadata account that the resolver needs
type Metadata struct {
	Key             uint8            `json:"key"`
	UpdateAuthority solana.PublicKey `json:"updateAuthority"`
	Mint            solana.PublicKey `json:"mint"`
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	URI             string           `json:"uri"`
}

// DecodeMetadata decodes the leading fields of a metadata account.
// Strings are stored padded with NUL bytes on chain, which are trimmed here.
func DecodeMetadata(data []byte) (*Metadata, error) {
	r := reader{data: data}
	md := &Metadata{
		Key: r.u8(),
	}
	md.UpdateAuthority = r.pubkey()
	md.Mint = r.pubkey()
	md.Name = trimPadding(r.str())
	md.Symbol = trimPadding(r.str())
	md.URI = trimPadding(r.str())

	if r.err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", r.err)
	}
	return md, nil
}

// EncodeMetadata writes the fields read by DecodeMetadata
func EncodeMetadata(md *Metadata) []byte {
	buf := []byte{md.Key}
	buf = append(buf, md.UpdateAuthority[:]...)
	buf = append(buf, md.Mint[:]...)
	for _, s := range []string{md.Name, md.Symbol, md.URI} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}

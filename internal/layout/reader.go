package layout

import (
	"encoding/binary"
	"errors"

	"pfpgofer/internal/solana"
)

// ErrTruncated is returned when a variable-length layout runs past the end of the data
var ErrTruncated = errors.New("unexpected end of account data")

// reader is a little-endian borsh cursor; the first failure sticks in err
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() solana.PublicKey {
	var pk solana.PublicKey
	b := r.take(solana.PublicKeyLength)
	if b != nil {
		copy(pk[:], b)
	}
	return pk
}

func (r *reader) str() string {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

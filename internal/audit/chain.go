package audit

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/zeebo/blake3"
)

// Chain seals entries with a keyed BLAKE3 hash over the entry fields and the
// previous hash. Rewriting any entry breaks every later link.
type Chain struct {
	key [32]byte
}

// NewChain derives the sealing key from secret.
func NewChain(secret []byte) (*Chain, error) {
	if len(secret) == 0 {
		return nil, errors.New("audit: chain key required")
	}
	return &Chain{key: blake3.Sum256(secret)}, nil
}

// Seal computes the hash of e. e.Hash is ignored.
func (c *Chain) Seal(e Entry) []byte {
	h, err := blake3.NewKeyed(c.key[:])
	if err != nil {
		// The key is always 32 bytes.
		panic(err)
	}
	var buf [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	writeBytes := func(b []byte) {
		writeInt(int64(len(b)))
		_, _ = h.Write(b)
	}

	writeInt(e.ID)
	if e.UserID != nil {
		_, _ = h.Write([]byte{1})
		writeInt(*e.UserID)
	} else {
		_, _ = h.Write([]byte{0})
	}
	writeBytes([]byte(e.Action))
	writeInt(e.OccurredAt.UnixMicro())
	writeBytes(e.PrevHash)
	return h.Sum(nil)
}

// Valid reports whether e links to prev and carries its own seal.
func (c *Chain) Valid(prev []byte, e Entry) bool {
	if !bytes.Equal(prev, e.PrevHash) {
		return false
	}
	return bytes.Equal(c.Seal(e), e.Hash)
}

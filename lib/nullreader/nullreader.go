package nullreader

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"
)

// Reader emits an endless stream of zero bytes.
type Reader struct{}

func (Reader) Read(out []byte) (int, error) {
	for i := range out {
		out[i] = 0
	}
	return len(out), nil
}

type NullReader struct {
	*io.LimitedReader
}

// NewNullReader returns a reader of exactly size zero bytes, used to fill
// sectors sealed without deal data.
func NewNullReader(size abi.UnpaddedPieceSize) io.Reader {
	return &NullReader{(io.LimitReader(&Reader{}, int64(size))).(*io.LimitedReader)}
}

func (m NullReader) NullBytes() int64 {
	return m.N
}

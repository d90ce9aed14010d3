package batch

import (
	"bytes"
	"io"

	lz4 "github.com/pierrec/lz4/v3"

	"github.com/aiserve/msserve/mnerr"
)

// CompressBytesVal lz4-compresses a string/bytes tensor payload once it
// crosses threshold bytes, applied at the wire.EncodeTensor/DecodeTensor
// boundary (SPEC_FULL.md §6) where a variable-length tensor leaves one
// process for another. Returns (compressed, true, nil) if compression
// was applied, else (data, false, nil).
func CompressBytesVal(data []byte, threshold int) ([]byte, bool, error) {
	if threshold <= 0 || len(data) < threshold {
		return data, false, nil
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, false, mnerr.Wrap(mnerr.SystemError, err, "lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, false, mnerr.Wrap(mnerr.SystemError, err, "lz4 compress close")
	}
	return buf.Bytes(), true, nil
}

// DecompressBytesVal reverses CompressBytesVal.
func DecompressBytesVal(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, mnerr.Wrap(mnerr.SystemError, err, "lz4 decompress")
	}
	return out, nil
}

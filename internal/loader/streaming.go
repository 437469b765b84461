package loader

// streaming.go provides the byte-level readers every text source passes
// through before parsing:
//
//   - BOMSkippingReader: Removes a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - CountingReader: Tracks bytes read for SourceInfo.BytesRead and progress
//
// Decoding from the source encoding happens between the two (see encoding.go).

import (
	"io"
)

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// The UTF-8 BOM is 0xEF 0xBB 0xBF and is commonly added by Windows programs.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	pending    []byte // Bytes read during the BOM check that were not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			n = 0
		}
		r.pending = r.buf[:n]
		if n == 0 && err == io.EOF {
			return 0, io.EOF
		}
	}

	// Return any bytes held back by the BOM check first
	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncodings is the candidate list used when a request names none.
var DefaultEncodings = []string{"utf-8", "latin-1"}

// errUndecodable is reported for a candidate whose decoder hits bytes it
// cannot map.
var errUndecodable = errors.New("undecodable byte sequence")

// aliases covers common spellings that the IANA and WHATWG indexes resolve
// differently or not at all.
var aliases = map[string]encoding.Encoding{
	"utf-8":      unicode.UTF8,
	"utf8":       unicode.UTF8,
	"utf-8-sig":  unicode.UTF8,
	"latin-1":    charmap.ISO8859_1,
	"latin1":     charmap.ISO8859_1,
	"iso-8859-1": charmap.ISO8859_1,
	"cp1252":     charmap.Windows1252,
}

// candidate is a resolved encoding name.
type candidate struct {
	name string
	enc  encoding.Encoding
}

func (c candidate) isUTF8() bool { return c.enc == unicode.UTF8 }

// resolveEncodings maps names to encodings. Unknown names fail the load
// before any I/O.
func resolveEncodings(names []string) ([]candidate, error) {
	if len(names) == 0 {
		names = DefaultEncodings
	}
	out := make([]candidate, 0, len(names))
	for _, name := range names {
		enc, err := lookupEncoding(name)
		if err != nil {
			return nil, err
		}
		out = append(out, candidate{name: name, enc: enc})
	}
	return out, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if enc, ok := aliases[key]; ok {
		return enc, nil
	}
	// ianaindex returns a nil encoding for names it knows but x/text does
	// not implement.
	if enc, err := ianaindex.IANA.Encoding(key); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(key); err == nil {
		return enc, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// decode wraps r so that it yields UTF-8 text. UTF-8 input only has its
// BOM removed.
func (c candidate) decode(r io.Reader) io.Reader {
	if c.isUTF8() {
		return NewBOMSkippingReader(r)
	}
	return transform.NewReader(r, c.enc.NewDecoder())
}

// validate reads r to the end and reports whether it decodes cleanly under c.
func (c candidate) validate(r io.Reader) error {
	if c.isUTF8() {
		_, err := io.Copy(io.Discard, transform.NewReader(r, encoding.UTF8Validator))
		if errors.Is(err, encoding.ErrInvalidUTF8) {
			return errUndecodable
		}
		return err
	}

	br := bufio.NewReader(transform.NewReader(r, c.enc.NewDecoder()))
	for offset := 0; ; {
		ch, size, err := br.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, transform.ErrShortSrc) {
				return errUndecodable
			}
			return err
		}
		// Decoders substitute U+FFFD for sequences they cannot map.
		if ch == utf8.RuneError {
			return fmt.Errorf("%w near decoded offset %d", errUndecodable, offset)
		}
		offset += size
	}
}

// Package codec implements the incremental text decoder (C2): it turns
// successive byte runs from the Telnet layer into characters using a
// configurable, runtime-switchable charset, buffering any trailing
// partial multi-byte sequence across calls.
package codec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Name identifies a supported charset label, as would appear in a
// connection profile's "encoding label" field (§6).
type Name string

const (
	UTF8       Name = "utf-8"
	CP437      Name = "cp437"
	Latin1     Name = "iso-8859-1"
	Windows1252 Name = "windows-1252"
)

// Lookup resolves a charset label to a golang.org/x/text encoding. The
// comparison is case-insensitive.
func Lookup(name Name) (encoding.Encoding, error) {
	switch Name(strings.ToLower(string(name))) {
	case UTF8, "":
		return unicode.UTF8, nil
	case CP437:
		return charmap.CodePage437, nil
	case Latin1:
		return charmap.ISO8859_1, nil
	case Windows1252:
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("codec: unsupported charset %q", name)
	}
}

// Decoder incrementally decodes raw text bytes (as flushed by the
// telnet layer's FrameText frames) into UTF-8 characters, preserving a
// trailing incomplete multi-byte sequence across calls.
//
// Decoder is not safe for concurrent use; it is owned by the single
// pipeline task per §5.
type Decoder struct {
	charset Name
	enc     encoding.Encoding
	tr      transform.Transformer
	carry   []byte
}

// New creates a Decoder for the given charset label. An empty or
// unrecognized label falls back to UTF-8.
func New(charset Name) *Decoder {
	enc, err := Lookup(charset)
	if err != nil {
		enc = unicode.UTF8
	}
	return &Decoder{
		charset: charset,
		enc:     enc,
		tr:      enc.NewDecoder(),
	}
}

// SetCharset switches the active charset at runtime. Per §4.2, this
// resets the partial-sequence buffer and decoder state: any bytes
// buffered under the old charset are discarded rather than
// reinterpreted, since they cannot be assumed to mean anything under
// the new charset.
func (d *Decoder) SetCharset(charset Name) error {
	enc, err := Lookup(charset)
	if err != nil {
		return err
	}
	d.charset = charset
	d.enc = enc
	d.tr = enc.NewDecoder()
	d.carry = nil
	return nil
}

// Charset returns the currently active charset label.
func (d *Decoder) Charset() Name {
	return d.charset
}

// Decode converts a raw byte run into a UTF-8 string. Trailing bytes
// that form an incomplete multi-byte sequence are buffered and
// prepended to the input on the next call, so a code point split
// across TCP reads decodes correctly once its continuation bytes
// arrive. Decode never returns an error: malformed or unmappable
// input is replaced with the Unicode replacement character by the
// transform.Transformer that the encoding's NewDecoder returns, matching
// §4.2/§7's "DecodeError... never fatal" rule.
func (d *Decoder) Decode(data []byte) string {
	if len(d.carry) > 0 {
		data = append(append([]byte(nil), d.carry...), data...)
		d.carry = nil
	}
	if len(data) == 0 {
		return ""
	}

	var out strings.Builder
	src := data
	for len(src) > 0 {
		dst := make([]byte, 4*len(src)+16)
		nDst, nSrc, err := d.tr.Transform(dst, src, false)
		if nDst > 0 {
			out.Write(dst[:nDst])
		}
		src = src[nSrc:]

		if err == transform.ErrShortSrc {
			// Remaining bytes are an incomplete trailing sequence; carry
			// them over to the next call untouched.
			d.carry = append([]byte(nil), src...)
			src = nil
			break
		}
		if err != nil {
			// Defensive: any other transform error (e.g. ErrShortDst on a
			// pathological charset) is treated as "nothing more to do this
			// call"; remaining bytes are carried over rather than dropped.
			if nSrc == 0 {
				d.carry = append([]byte(nil), src...)
				break
			}
			continue
		}
		if nSrc == 0 && nDst == 0 {
			break
		}
	}

	return out.String()
}

package header

import (
	"errors"
	"fmt"
	"strings"
)

// Wire format
//
// A header crosses a transport boundary as a flat JSON-like object:
//
//	{"command":"solve","name":"i1","node":"[1]"}
//
// Keys and values are always double-quoted. Inside a string the escapes
// \" \\ \b \f \n \r \t are recognised, plus \u00XX for single bytes; any
// other \u value is rejected. Raw control bytes (0x00-0x1f) are not allowed
// inside strings. Decoding stops at the first unescaped closing brace, so
// a message body may follow the header directly.

// ErrSyntax is wrapped by every decoding error.
var ErrSyntax = errors.New("header syntax error")

// Encode returns the wire form of h, entries in insertion order.
func Encode(h Header) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(&b, k)
		b.WriteByte(':')
		writeQuoted(&b, h.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

// String implements fmt.Stringer using the wire form.
func (h Header) String() string {
	return Encode(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h Header) MarshalText() ([]byte, error) {
	return []byte(Encode(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Trailing input after the closing brace is rejected.
func (h *Header) UnmarshalText(text []byte) error {
	parsed, rest, err := Decode(string(text))
	if err != nil {
		return err
	}
	if strings.TrimSpace(rest) != "" {
		return fmt.Errorf("%w: trailing data after header", ErrSyntax)
	}
	*h = parsed
	return nil
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c <= 0x1f {
				fmt.Fprintf(b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
}

// Decode parses one header from the start of input and returns it together
// with the unread remainder (everything after the closing brace).
// Any bytes before the opening brace are skipped. Duplicate keys keep their
// first value. A trailing comma before the closing brace is accepted.
func Decode(input string) (Header, string, error) {
	d := decoder{in: input}
	h, err := d.header()
	if err != nil {
		return Header{}, "", err
	}
	return h, d.in[d.pos:], nil
}

// Parse decodes a header and rejects anything but whitespace after it.
func Parse(input string) (Header, error) {
	var h Header
	if err := h.UnmarshalText([]byte(input)); err != nil {
		return Header{}, err
	}
	return h, nil
}

type decoder struct {
	in  string
	pos int
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) next() (byte, bool) {
	if d.pos >= len(d.in) {
		return 0, false
	}
	c := d.in[d.pos]
	d.pos++
	return c, true
}

func (d *decoder) skipSpaces() {
	for d.pos < len(d.in) && d.in[d.pos] == ' ' {
		d.pos++
	}
}

func (d *decoder) header() (Header, error) {
	open := strings.IndexByte(d.in, '{')
	if open < 0 {
		return Header{}, d.errorf("opening brace expected")
	}
	d.pos = open + 1

	var h Header
	for {
		d.skipSpaces()
		c, ok := d.next()
		if !ok {
			return Header{}, d.errorf("unexpected end")
		}
		if c == '}' {
			return h, nil
		}
		if c != '"' {
			return Header{}, d.errorf("double quotes expected")
		}
		key, err := d.quoted()
		if err != nil {
			return Header{}, err
		}

		d.skipSpaces()
		if c, ok = d.next(); !ok || c != ':' {
			return Header{}, d.errorf("colon expected")
		}
		d.skipSpaces()
		if c, ok = d.next(); !ok || c != '"' {
			return Header{}, d.errorf("double quotes expected")
		}
		value, err := d.quoted()
		if err != nil {
			return Header{}, err
		}
		h.Insert(key, value)

		d.skipSpaces()
		c, ok = d.next()
		switch {
		case !ok:
			return Header{}, d.errorf("unexpected end")
		case c == '}':
			return h, nil
		case c != ',':
			return Header{}, d.errorf("comma expected")
		}
	}
}

// quoted reads a string body; the opening quote has been consumed.
func (d *decoder) quoted() (string, error) {
	var b strings.Builder
	for {
		c, ok := d.next()
		if !ok {
			return "", d.errorf("unexpected end")
		}
		switch {
		case c == '"':
			return b.String(), nil
		case c == '\\':
			if err := d.escape(&b); err != nil {
				return "", err
			}
		case c <= 0x1f:
			return "", d.errorf("control char not allowed")
		default:
			b.WriteByte(c)
		}
	}
}

func (d *decoder) escape(b *strings.Builder) error {
	c, ok := d.next()
	if !ok {
		return d.errorf("unexpected end")
	}
	switch c {
	case '"', '\\':
		b.WriteByte(c)
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'u':
		if d.pos+4 > len(d.in) {
			return d.errorf("unexpected end")
		}
		if d.in[d.pos:d.pos+2] != "00" {
			return d.errorf("unicode not supported")
		}
		hi, okHi := hexValue(d.in[d.pos+2])
		lo, okLo := hexValue(d.in[d.pos+3])
		if !okHi || !okLo {
			return d.errorf("bad hex string")
		}
		d.pos += 4
		b.WriteByte(hi<<4 | lo)
	default:
		return d.errorf("bad char after escape")
	}
	return nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

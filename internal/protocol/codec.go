// internal/protocol/codec.go
package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Codec converts between wire bytes and text in a named character encoding
type Codec struct {
	name string
	enc  encoding.Encoding
}

// NewCodec resolves an encoding name such as "UTF-8", "ascii" or "latin1"
func NewCodec(name string) (*Codec, error) {
	normalized := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	switch normalized {
	case "", "utf-8", "utf8":
		return &Codec{name: "utf-8"}, nil
	case "ascii", "us-ascii":
		return &Codec{name: "ascii"}, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, protocolError("unsupported encoding %q", name)
	}
	return &Codec{name: normalized, enc: enc}, nil
}

// Name returns the normalized encoding name
func (c *Codec) Name() string {
	return c.name
}

// Decode converts raw bytes to text, failing on bytes invalid in the encoding
func (c *Codec) Decode(data []byte) (string, error) {
	switch {
	case c.name == "utf-8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid utf-8 sequence in %q", data)
		}
		return string(data), nil
	case c.name == "ascii":
		for i, b := range data {
			if b >= 0x80 {
				return "", fmt.Errorf("non-ascii byte 0x%02x at offset %d", b, i)
			}
		}
		return string(data), nil
	}

	decoded, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("can't decode %q as %s: %w", data, c.name, err)
	}
	return string(decoded), nil
}

// Encode converts text to bytes, failing with ErrConnectionProtocol on
// characters the encoding can't represent
func (c *Codec) Encode(text string) ([]byte, error) {
	switch {
	case c.name == "utf-8":
		return []byte(text), nil
	case c.name == "ascii":
		for i, r := range text {
			if r >= 0x80 {
				return nil, protocolError("can't encode %q to ascii: rune %q at offset %d", text, r, i)
			}
		}
		return []byte(text), nil
	}

	encoded, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, protocolError("can't encode %q to %s: %v", text, c.name, err)
	}
	return encoded, nil
}

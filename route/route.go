// Package route encodes logical operation names into the routing metadata block
// that accompanies every request.
//
// Metadata format:
//
//	0     1
//	┌─────┬──────────────────────┐
//	│ len │  route (UTF-8 bytes) │
//	│ u8  │  len bytes           │
//	└─────┴──────────────────────┘
//
// The single length byte caps a route at 255 bytes. This package is the only
// place that knows how route names are framed.
package route

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxLen is the longest route, in bytes, that fits behind a one-byte length prefix.
const MaxLen = 255

var (
	ErrTooLong   = errors.New("route: name exceeds 255 bytes")
	ErrNotUTF8   = errors.New("route: name is not valid UTF-8")
	ErrEmpty     = errors.New("route: empty metadata")
	ErrTruncated = errors.New("route: metadata shorter than its length prefix")
)

// Encode returns [len][route]. It fails when the route is longer than MaxLen
// bytes or is not valid UTF-8.
func Encode(route string) ([]byte, error) {
	if len(route) > MaxLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(route))
	}
	if !utf8.ValidString(route) {
		return nil, fmt.Errorf("%w: %q", ErrNotUTF8, route)
	}
	buf := make([]byte, 1+len(route))
	buf[0] = byte(len(route))
	copy(buf[1:], route)
	return buf, nil
}

// MustEncode is Encode for static route tables; it panics on an invalid route.
func MustEncode(route string) []byte {
	b, err := Encode(route)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode is the server-side inverse of Encode. Trailing bytes after the route are ignored.
func Decode(metadata []byte) (string, error) {
	if len(metadata) == 0 {
		return "", ErrEmpty
	}
	n := int(metadata[0])
	if len(metadata) < 1+n {
		return "", ErrTruncated
	}
	return string(metadata[1 : 1+n]), nil
}

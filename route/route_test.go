package route

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	b, err := Encode("users.login")
	require.NoError(t, err)
	assert.Equal(t, append([]byte{11}, "users.login"...), b)
}

func TestEncodeEmptyRoute(t *testing.T) {
	b, err := Encode("")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, b)
}

func TestEncodeLengthLimit(t *testing.T) {
	b, err := Encode(strings.Repeat("a", 255))
	require.NoError(t, err)
	assert.Len(t, b, 256)
	assert.Equal(t, byte(255), b[0])

	_, err = Encode(strings.Repeat("a", 256))
	require.ErrorIs(t, err, ErrTooLong)
}

// The limit is in bytes, not runes.
func TestEncodeCountsUTF8Bytes(t *testing.T) {
	r := strings.Repeat("é", 128) // 256 bytes
	_, err := Encode(r)
	require.ErrorIs(t, err, ErrTooLong)

	b, err := Encode("proj.é")
	require.NoError(t, err)
	assert.Equal(t, byte(7), b[0])
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := Encode("users.\xff")
	require.ErrorIs(t, err, ErrNotUTF8)
	assert.Panics(t, func() { MustEncode("\xc3") })
}

func TestEncodeInjective(t *testing.T) {
	routes := []string{"a", "ab", "a.b", "users.login", "users.loginx", "projects.getAllForUser"}
	seen := map[string]string{}
	for _, r := range routes {
		b := MustEncode(r)
		if prev, ok := seen[string(b)]; ok {
			t.Fatalf("%q and %q encode identically", prev, r)
		}
		seen[string(b)] = r
		assert.True(t, bytes.Equal(b, MustEncode(r)), "encode must be deterministic")
	}
}

func TestMustEncodePanics(t *testing.T) {
	assert.Panics(t, func() { MustEncode(strings.Repeat("x", 300)) })
}

func TestDecode(t *testing.T) {
	r, err := Decode(append(MustEncode("chats.getAll"), 0xff, 0xfe))
	require.NoError(t, err)
	assert.Equal(t, "chats.getAll", r)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrEmpty)

	_, err = Decode([]byte{5, 'a'})
	require.ErrorIs(t, err, ErrTruncated)
}

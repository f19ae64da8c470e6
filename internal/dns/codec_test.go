package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeName(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		want    []byte
		wantErr bool
	}{
		{name: "simple", domain: "example.com", want: []byte("\x07example\x03com\x00")},
		{name: "trailing dot", domain: "example.com.", want: []byte("\x07example\x03com\x00")},
		{name: "root", domain: "", want: []byte{0}},
		{name: "root dot", domain: ".", want: []byte{0}},
		{name: "empty label", domain: "a..b", wantErr: true},
		{name: "label too long", domain: string(make([]byte, 64)) + ".com", wantErr: true},
		{name: "non ascii", domain: "ex\x80mple.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeName(tt.domain)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrWire)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeNameRoundTrip(t *testing.T) {
	for _, domain := range []string{"example.com", "a.b.c.d.e", "x", "1.2.3.4.in-addr.arpa"} {
		wire, err := EncodeName(domain)
		require.NoError(t, err)
		off := 0
		got, err := DecodeName(wire, &off)
		require.NoError(t, err)
		assert.Equal(t, domain, got)
		assert.Equal(t, len(wire), off)
	}
}

func TestDecodeNamePreservesCase(t *testing.T) {
	wire, err := EncodeName("ExAmPlE.CoM")
	require.NoError(t, err)
	off := 0
	got, err := DecodeName(wire, &off)
	require.NoError(t, err)
	assert.Equal(t, "ExAmPlE.CoM", got)
}

func TestDecodeNameCompression(t *testing.T) {
	// "example.com" at offset 0, then "www" + pointer to offset 0.
	msg := []byte("\x07example\x03com\x00" + "\x03www\xc0\x00")
	off := 13
	got, err := DecodeName(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", got)
	assert.Equal(t, len(msg), off)
}

func TestDecodeNamePointerLoop(t *testing.T) {
	// Pointer at offset 0 pointing to itself.
	msg := []byte{0xC0, 0x00}
	off := 0
	_, err := DecodeName(msg, &off)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWire)
}

func TestDecodeNameTruncated(t *testing.T) {
	tests := [][]byte{
		{},
		{0x07, 'e', 'x'},
		{0xC0}, // pointer missing second byte
	}
	for _, msg := range tests {
		off := 0
		_, err := DecodeName(msg, &off)
		assert.ErrorIs(t, err, ErrWire)
	}
}

func TestSkipName(t *testing.T) {
	wire, err := EncodeName("foo.bar.example")
	require.NoError(t, err)
	off := 0
	require.NoError(t, SkipName(wire, &off))
	assert.Equal(t, len(wire), off)

	// A compression pointer ends the name after two bytes.
	msg := []byte{0x03, 'w', 'w', 'w', 0xC0, 0x00, 0xAA}
	off = 0
	require.NoError(t, SkipName(msg, &off))
	assert.Equal(t, 6, off)
}

func TestNormalizeAndEqualNames(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeName("ExAmple.COM."))
	assert.True(t, EqualNames("Example.Com", "example.com."))
	assert.False(t, EqualNames("example.org", "example.com"))
}

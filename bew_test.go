package smf

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestVlqRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("readVlq(writeVlq(v)) == v", prop.ForAll(
		func(v uint32) bool {
			var buf bytes.Buffer
			if err := writeVlq(&buf, v); err != nil {
				return false
			}
			got, _, err := readVlq(&buf)
			return err == nil && got == v
		},
		gen.UInt32Range(0, maxVlqValue),
	))

	properties.TestingRun(t)
}

func TestVlqKnownEncodings(t *testing.T) {
	cases := []struct {
		value uint32
		bytes []byte
	}{
		{0x00000000, []byte{0x00}},
		{0x00000040, []byte{0x40}},
		{0x0000007F, []byte{0x7F}},
		{0x00000080, []byte{0x81, 0x00}},
		{0x00002000, []byte{0xC0, 0x00}},
		{0x00003FFF, []byte{0xFF, 0x7F}},
		{0x00004000, []byte{0x81, 0x80, 0x00}},
		{0x001FFFFF, []byte{0xFF, 0xFF, 0x7F}},
		{0x00200000, []byte{0x81, 0x80, 0x80, 0x00}},
		{0x08000000, []byte{0xC0, 0x80, 0x80, 0x00}},
		{0x0FFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, writeVlq(&buf, c.value))
		require.Equal(t, c.bytes, buf.Bytes())

		got, n, err := readVlq(bytes.NewReader(c.bytes))
		require.NoError(t, err)
		require.Equal(t, c.value, got)
		require.Equal(t, len(c.bytes), n)
	}
}

func TestVlqOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	err := writeVlq(&buf, maxVlqValue+1)
	require.Error(t, err)
}

func TestVlqTruncated(t *testing.T) {
	// continuation bit set on every byte, source runs out before a
	// terminating byte is found.
	_, _, err := readVlq(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	require.Error(t, err)
}

func TestUintRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	for _, width := range []int{1, 2, 4} {
		width := width
		properties.Property("readUint(writeUint(v)) == v", prop.ForAll(
			func(v uint32) bool {
				if width < 4 {
					v &= 1<<(8*width) - 1
				}
				var buf bytes.Buffer
				if err := writeUint(&buf, v, width); err != nil {
					return false
				}
				got, err := readUint(&buf, width)
				return err == nil && got == v
			},
			gen.UInt32(),
		))
	}

	properties.TestingRun(t)
}

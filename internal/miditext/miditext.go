// Package miditext decodes the raw byte payload of text-bearing meta
// events (track name, lyric, marker, copyright, ...) into a Go string.
package miditext

import "golang.org/x/text/encoding"

// Decode converts payload to a string using enc. A nil enc decodes
// payload as raw UTF-8 bytes, the common case for modern files; callers
// working with legacy Latin-1 sequencer output pass
// golang.org/x/text/encoding/charmap.ISO8859_1.
func Decode(payload []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(payload), nil
	}
	out, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode converts s to bytes using enc, the inverse of Decode. A nil
// enc writes s as raw UTF-8 bytes.
func Encode(s string, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return []byte(s), nil
	}
	return enc.NewEncoder().Bytes([]byte(s))
}

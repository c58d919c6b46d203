// Package label stores the short debug tags attached to capability slots.
//
// Tags are kept as fixed-width Latin-1 byte strings, the form kernel
// debuggers expect for object names, so a slot record never holds a pointer
// to a caller-owned string.
package label

import (
	"golang.org/x/text/encoding/charmap"
)

// MaxLen is the number of bytes a tag can hold. Longer labels are truncated.
const MaxLen = 16

// Tag is a NUL padded Latin-1 debug tag.
type Tag [MaxLen]byte

// replacement is used for runes outside Latin-1.
const replacement = '?'

// Encode converts a UTF-8 label into a tag. Runes that have no Latin-1
// encoding are replaced with '?'.
func Encode(s string) Tag {
	var t Tag
	n := 0
	for _, r := range s {
		if n == MaxLen {
			break
		}
		if r < 0x80 {
			t[n] = byte(r)
			n++
			continue
		}
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = replacement
		}
		t[n] = b
		n++
	}
	return t
}

// Len returns the number of bytes in use.
func (t Tag) Len() int {
	for i, b := range t {
		if b == 0 {
			return i
		}
	}
	return MaxLen
}

// IsZero reports whether the tag is empty.
func (t Tag) IsZero() bool {
	return t[0] == 0
}

// String decodes the tag back to UTF-8.
func (t Tag) String() string {
	n := t.Len()
	if isASCII(t[:n]) {
		return string(t[:n])
	}
	out := make([]rune, 0, n)
	for _, b := range t[:n] {
		out = append(out, charmap.ISO8859_1.DecodeByte(b))
	}
	return string(out)
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

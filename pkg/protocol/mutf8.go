package protocol

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// The relay speaks Java's DataOutputStream string format: NUL is written as
// the two-byte sequence C0 80 and characters outside the BMP are written as
// a pair of three-byte surrogate encodings.

// encodedLen returns the number of bytes appendModifiedUTF8 produces for s.
// Invalid UTF-8 in s counts as U+FFFD.
func encodedLen(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r == 0:
			n += 2
		case r < 0x80:
			n++
		case r < 0x800:
			n += 2
		case r < 0x10000:
			n += 3
		default:
			n += 6
		}
	}
	return n
}

func appendModifiedUTF8(dst []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r == 0:
			dst = append(dst, 0xC0, 0x80)
		case r < 0x10000:
			dst = utf8.AppendRune(dst, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			dst = appendSurrogate(dst, hi)
			dst = appendSurrogate(dst, lo)
		}
	}
	return dst
}

func appendSurrogate(dst []byte, r rune) []byte {
	return append(dst, byte(0xE0|(r>>12)), byte(0x80|((r>>6)&0x3F)), byte(0x80|(r&0x3F)))
}

// decodeModifiedUTF8 accepts modified UTF-8 and, for peers that do not
// speak it, standard four-byte UTF-8 sequences.
func decodeModifiedUTF8(b []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(len(b))

	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			sb.WriteByte(c)
			i++

		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || !isCont(b[i+1]) {
				return "", malformed(i)
			}
			sb.WriteRune(rune(c&0x1F)<<6 | rune(b[i+1]&0x3F))
			i += 2

		case c&0xF0 == 0xE0:
			r, ok := threeByte(b, i)
			if !ok {
				return "", malformed(i)
			}
			i += 3
			if !utf16.IsSurrogate(r) {
				sb.WriteRune(r)
				continue
			}
			lo, ok := threeByte(b, i)
			if !ok {
				return "", fmt.Errorf("unpaired surrogate at byte %d", i-3)
			}
			combined := utf16.DecodeRune(r, lo)
			if combined == utf8.RuneError {
				return "", fmt.Errorf("unpaired surrogate at byte %d", i-3)
			}
			sb.WriteRune(combined)
			i += 3

		case c&0xF8 == 0xF0:
			r, size := utf8.DecodeRune(b[i:])
			if r == utf8.RuneError && size <= 1 {
				return "", malformed(i)
			}
			sb.WriteRune(r)
			i += size

		default:
			return "", malformed(i)
		}
	}
	return sb.String(), nil
}

func threeByte(b []byte, i int) (rune, bool) {
	if i+2 >= len(b) || b[i]&0xF0 != 0xE0 || !isCont(b[i+1]) || !isCont(b[i+2]) {
		return 0, false
	}
	return rune(b[i]&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F), true
}

func isCont(c byte) bool {
	return c&0xC0 == 0x80
}

func malformed(i int) error {
	return fmt.Errorf("malformed input around byte %d", i)
}

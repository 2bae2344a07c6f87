package protocol

import "testing"

func TestEncodedLen(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"\x00", 2},
		{"é", 2},
		{"あ", 3},
		{"😀", 6},
		{"\xff", 3},
	}

	for _, tt := range tests {
		if got := encodedLen(tt.in); got != tt.want {
			t.Errorf("encodedLen(%q) = %d, want %d", tt.in, got, tt.want)
		}
		if got := len(appendModifiedUTF8(nil, tt.in)); got != tt.want {
			t.Errorf("len(appendModifiedUTF8(%q)) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodeModifiedUTF8_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"lone continuation", []byte{0x80}},
		{"truncated two byte", []byte{0xC3}},
		{"truncated three byte", []byte{0xE3, 0x81}},
		{"lone high surrogate", []byte{0xED, 0xA0, 0xBD}},
		{"high then non surrogate", []byte{0xED, 0xA0, 0xBD, 0xE3, 0x81, 0x82}},
		{"lone low surrogate", []byte{0xED, 0xB8, 0x80}},
		{"invalid lead", []byte{0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeModifiedUTF8(tt.in); err == nil {
				t.Errorf("decodeModifiedUTF8(% x) succeeded, want error", tt.in)
			}
		})
	}
}

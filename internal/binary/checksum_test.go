package binary

import (
	"testing"
)

func TestDataSum(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected uint32
	}{
		{"empty", []byte{}, 0},
		{"one word", []byte{0x00, 0x00, 0x00, 0x01}, 1},
		{"two words", []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}, 0x00010001},
		// 0xFFFFFFFF + 1 wraps around to 1 in ones' complement arithmetic.
		{"end-around carry", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x01}, 1},
		{"trailing partial word ignored", []byte{0x00, 0x00, 0x00, 0x02, 0x7F}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DataSum(tt.input); got != tt.expected {
				t.Errorf("DataSum = 0x%08x, want 0x%08x", got, tt.expected)
			}
		})
	}
}

func TestDataSumBlockOfZeros(t *testing.T) {
	if got := DataSum(make([]byte, BlockSize)); got != 0 {
		t.Errorf("DataSum(zero block) = 0x%08x, want 0", got)
	}
}

func TestDataSumManyWords(t *testing.T) {
	// Enough large words to force intermediate folding.
	data := make([]byte, 4*100000)
	for i := range data {
		data[i] = 0xFF
	}
	data[len(data)-1] = 0xFE

	// 0xFFFFFFFF is negative zero in ones' complement, so only the last
	// word contributes.
	if got := DataSum(data); got != 0xFFFFFFFE {
		t.Errorf("DataSum = 0x%08x, want 0xfffffffe", got)
	}
}

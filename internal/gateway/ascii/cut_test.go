package ascii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCut(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{"shorter than max", "abc", 8, 3},
		{"exactly max", "abcd", 4, 4},
		{"ascii boundary", "abcdef", 4, 4},
		{"two byte rune straddles", "abcé", 4, 3},
		{"rune ends at max", "abé!", 4, 4},
		{"three byte rune straddles", "ab€x", 4, 2},
		{"four byte rune straddles", "a𝄞", 3, 1},
		{"no rune start in reach", strings.Repeat("\x80", 8), 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cut([]byte(tt.in), tt.limit))
		})
	}
}

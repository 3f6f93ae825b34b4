package id

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	id1 := Generate()
	id2 := Generate()

	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1, 36)
}

func TestHex(t *testing.T) {
	tests := []struct {
		name  string
		bytes int
	}{
		{"token", 10},
		{"client", 8},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Hex(tt.bytes)
			assert.Len(t, s, tt.bytes*2)
			_, err := hex.DecodeString(s)
			assert.NoError(t, err)
		})
	}
}

func TestUniqueRetriesOnCollision(t *testing.T) {
	calls := 0
	s := Unique(8, func(string) bool {
		calls++
		return calls < 3
	})
	assert.Equal(t, 3, calls)
	assert.Len(t, s, 16)
}

func BenchmarkHex(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Hex(10)
	}
}

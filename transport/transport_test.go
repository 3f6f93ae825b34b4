package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{":8080", true},
		{"127.0.0.1:80", true},
		{"[::1]:443", true},
		{"gateway.local:9000", true},
		{"", false},
		{"localhost", false},
		{":0", false},
		{":65536", false},
		{"-bad:80", false},
		{"bad_host:80", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateAddress(tt.addr), tt.addr)
	}
}

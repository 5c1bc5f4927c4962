package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formatted with leading zero", "0 11 99999-8888", "5511999998888"},
		{"bare local number", "11999998888", "5511999998888"},
		{"already has country code", "5511999998888", "5511999998888"},
		{"international format", "+55 (11) 99999-8888", "5511999998888"},
		{"zero then country code", "05511999998888", "5511999998888"},
		{"strips letters", "zap11z999998888", "5511999998888"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeNumber(tt.in))
		})
	}
}

func TestNormalizeNumberIdempotent(t *testing.T) {
	once := NormalizeNumber("0 11 99999-8888")
	assert.Equal(t, once, NormalizeNumber(once))
}

func TestNormalizeNumberDropsSingleLeadingZero(t *testing.T) {
	// Only one zero is dropped; the rest of the digits stay put.
	assert.Equal(t, "55011999998888", NormalizeNumber("0011999998888"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999998888@s.whatsapp.net", NormalizePhone("0 11 99999-8888"))
}

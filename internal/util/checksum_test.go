package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum32Determinism(t *testing.T) {
	tests := []struct {
		name string
		a    []byte
		b    []byte
		same bool
	}{
		{
			name: "identical data yields identical checksums",
			a:    []byte("segment block payload"),
			b:    []byte("segment block payload"),
			same: true,
		},
		{
			name: "different data yields different checksums",
			a:    []byte("segment block payload"),
			b:    []byte("segment block payloae"),
			same: false,
		},
		{
			name: "empty data is stable",
			a:    []byte{},
			b:    []byte{},
			same: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca := Checksum32(tt.a)
			cb := Checksum32(tt.b)
			if tt.same {
				assert.Equal(t, ca, cb)
			} else {
				assert.NotEqual(t, ca, cb)
			}
		})
	}
}

func TestVerifyChecksum32RejectsCorruption(t *testing.T) {
	data := []byte("frame contents")
	sum := Checksum32(data)

	assert.True(t, VerifyChecksum32(data, sum))
	assert.False(t, VerifyChecksum32(data, sum+1))
	assert.False(t, VerifyChecksum32(append(data, 'x'), sum))
}

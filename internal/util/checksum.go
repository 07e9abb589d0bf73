package util

import "hash/crc32"

// Segment frames carry a CRC32-C digest over the compressed payload.
// Castagnoli is hardware-accelerated on amd64 and arm64.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum32 returns the CRC32-C digest of data.
func Checksum32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// VerifyChecksum32 reports whether data digests to want.
func VerifyChecksum32(data []byte, want uint32) bool {
	return Checksum32(data) == want
}

// Package crc provides the streaming CRC32 (IEEE) used for manifest
// integrity throughout the update engine. Not a cryptographic digest:
// the manifest schema exists to detect corruption and local edits,
// not to authenticate content.
package crc

import (
	"hash/crc32"
	"io"
	"os"
)

// table is the IEEE polynomial (0xedb88320) table the manifest format
// is pinned to.
var table = crc32.MakeTable(crc32.IEEE)

// Sum32 streams r through CRC32-IEEE without buffering it whole.
func Sum32(r io.Reader) (uint32, error) {
	h := crc32.New(table)
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// File streams the file at path through CRC32-IEEE.
func File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Sum32(f)
}

// Bytes computes the CRC32-IEEE of b directly.
func Bytes(b []byte) uint32 {
	return crc32.Checksum(b, table)
}

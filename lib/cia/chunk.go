package cia

import "encoding/binary"

// ChunkRecord is one 0x30-byte big-endian TMD content chunk record:
// content ID, content index, type flags, a 64-bit size, and a SHA-256
// hash of the content body (initially zero, patched in once the body
// has been streamed and hashed).
type ChunkRecord struct {
	ID    ContentID
	Index uint16
	Type  uint16
	Size  uint64
	Hash  [32]byte
}

// Bytes encodes the chunk record to its on-disk 0x30-byte form.
func (c ChunkRecord) Bytes() []byte {
	buf := make([]byte, chunkRecordSize)
	binary.BigEndian.PutUint32(buf[0x00:], uint32(c.ID))
	binary.BigEndian.PutUint16(buf[0x04:], c.Index)
	binary.BigEndian.PutUint16(buf[0x06:], c.Type)
	binary.BigEndian.PutUint64(buf[0x08:], c.Size)
	copy(buf[0x10:], c.Hash[:])
	return buf
}

// Content describes one CIA content body the writer will stream: its
// identity (for the chunk record) and its length in bytes.
type Content struct {
	ID   ContentID
	Size uint64
}

// ExeFS layout within the game partition (NCCH header 0x1A0 gives its
// partition-relative offset, in media units):
//
//	Offset  Size    Description
//	0x000   0x40    Up to 4 file-entry headers (this converter only
//	                cares about the "icon" entry; the other 6 slots and
//	                the trailing hash table are opaque passthrough)
//	0x200   ...     File data, each file's offset field counted from here
//
// Each file-entry header is 0x10 bytes: an 8-byte null-padded ASCII
// name, a little-endian offset (relative to 0x200), and a little-endian
// size, both in bytes.
package cci

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sargunv/cci2cia/internal/ciaerr"
	"github.com/sargunv/cci2cia/internal/util"
)

const (
	// ExeFSHeaderSize is the portion of the ExeFS header this converter
	// reads: just the file-entry table, not the trailing hash table.
	ExeFSHeaderSize = 0x40
	exeFSEntrySize  = 0x10
	exeFSEntryCount = 4
	exeFSNameLen    = 8
	exeFSBodyOffset = 0x200

	// IconSize is the fixed size of the SMDH icon ExeFS stores.
	IconSize = 0x36C0

	iconEntryName = "icon"
)

// ExeFSEntry is one file-entry record from an ExeFS header.
type ExeFSEntry struct {
	Name string
	// Offset is relative to the start of the ExeFS file-data region
	// (partition ExeFSOffset + exeFSBodyOffset).
	Offset uint32
	Size   uint32
}

// ReadExeFSHeader reads the (still possibly encrypted) ExeFS file-entry
// table for the game partition at ncchOffset+exeFSOffset.
func ReadExeFSHeader(r io.ReaderAt, ncchOffset, exeFSOffset uint32) ([ExeFSHeaderSize]byte, error) {
	var buf [ExeFSHeaderSize]byte
	at := int64(ncchOffset) + int64(exeFSOffset)
	if _, err := r.ReadAt(buf[:], at); err != nil {
		return buf, ciaerr.New(ciaerr.IoFailure, "", fmt.Errorf("reading ExeFS header: %w", err))
	}
	return buf, nil
}

// ParseExeFSEntries decodes the (already decrypted) ExeFS file-entry
// table into its up-to-4 entries, skipping empty slots.
func ParseExeFSEntries(header []byte) []ExeFSEntry {
	entries := make([]ExeFSEntry, 0, exeFSEntryCount)
	for i := 0; i < exeFSEntryCount; i++ {
		base := i * exeFSEntrySize
		name := util.ExtractASCII(header[base : base+exeFSNameLen])
		if name == "" {
			continue
		}
		entries = append(entries, ExeFSEntry{
			Name:   name,
			Offset: binary.LittleEndian.Uint32(header[base+exeFSNameLen:]),
			Size:   binary.LittleEndian.Uint32(header[base+exeFSNameLen+4:]),
		})
	}
	return entries
}

// FindIcon returns the "icon" entry (the SMDH), if present.
func FindIcon(entries []ExeFSEntry) (ExeFSEntry, bool) {
	for _, e := range entries {
		if e.Name == iconEntryName {
			return e, true
		}
	}
	return ExeFSEntry{}, false
}

// IconAbsoluteOffset computes the icon's absolute byte offset within
// the CCI, given the game partition and ExeFS offsets the icon entry
// was found under.
func IconAbsoluteOffset(ncchOffset, exeFSOffset uint32, icon ExeFSEntry) int64 {
	return int64(ncchOffset) + int64(exeFSOffset) + exeFSBodyOffset + int64(icon.Offset)
}

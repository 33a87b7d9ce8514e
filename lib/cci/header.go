// Package cci reads the NCSD container and NCCH partition headers that
// make up a 3DS CCI (CTR Cart Image, ".3ds") file.
//
// https://www.3dbrew.org/wiki/NCSD
// https://www.3dbrew.org/wiki/NCCH
//
// NCSD Header layout (0x200 bytes at file offset 0x000):
//
//	Offset  Size  Description
//	0x000   256   RSA-2048 SHA-256 signature
//	0x100   4     Magic "NCSD"
//	0x104   4     Image size in media units
//	0x108   8     Title ID (little-endian)
//	0x110   8     Partition FS types
//	0x118   8     Partition crypto types
//	0x120   8     Partition 0 (Game Executable) offset+size, media units
//	0x128   8     Partition 1 (Manual) offset+size, media units
//	0x130   8     Partition 2 (Download Play child) offset+size, media units
//	0x138   ..    Partitions 3-7 (unused by retail carts; not read here)
package cci

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sargunv/cci2cia/internal/ciaerr"
)

const (
	// MediaUnit is the scaling factor NCSD/NCCH partition tables use:
	// every offset and size field in the tables is a count of these.
	MediaUnit = 0x200

	ncsdHeaderSize      = 0x200
	ncsdMagicOffset     = 0x100
	ncsdMagic           = "NCSD"
	ncsdTitleIDOffset   = 0x108
	ncsdPartTableOffset = 0x120
)

// PartitionRange is a partition's byte offset and size within the CCI,
// both already scaled from media units to bytes. A zero Size means the
// partition is absent.
type PartitionRange struct {
	Offset uint32
	Size   uint32
}

// Present reports whether the partition exists in this image.
func (p PartitionRange) Present() bool { return p.Offset != 0 && p.Size != 0 }

// Header holds the fields of the NCSD header this converter needs.
type Header struct {
	TitleID     uint64
	GameCXI     PartitionRange
	ManualCFA   PartitionRange
	DLPChildCFA PartitionRange
}

// ReadHeader reads and validates the NCSD header at the start of r.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, ncsdHeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", fmt.Errorf("reading NCSD header: %w", err))
	}

	magic := string(buf[ncsdMagicOffset : ncsdMagicOffset+4])
	if magic != ncsdMagic {
		return nil, ciaerr.New(ciaerr.NotACCI, "", fmt.Errorf("missing NCSD magic, found %q", magic))
	}

	titleID := binary.LittleEndian.Uint64(buf[ncsdTitleIDOffset:])

	readRange := func(index int) PartitionRange {
		off := ncsdPartTableOffset + index*8
		offsetMU := binary.LittleEndian.Uint32(buf[off:])
		sizeMU := binary.LittleEndian.Uint32(buf[off+4:])
		return PartitionRange{Offset: offsetMU * MediaUnit, Size: sizeMU * MediaUnit}
	}

	return &Header{
		TitleID:     titleID,
		GameCXI:     readRange(0),
		ManualCFA:   readRange(1),
		DLPChildCFA: readRange(2),
	}, nil
}

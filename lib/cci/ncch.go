// NCCH Header layout (0x200 bytes at a partition's start):
//
//	Offset  Size  Description
//	0x000   16    RSA-2048 SHA-256 signature (first 16 bytes double as KeyY)
//	0x100   4     Magic "NCCH"
//	0x118   8     Program ID (title ID)
//	0x150   16    Product code (ASCII, e.g. "CTR-P-ALGE")
//	0x160   32    ExtHeader hash (SHA-256), patched on SD conversion
//	0x188   8     Flags (content type, crypto method, fixed-key, platform)
//	0x18F   1     Crypto byte: bit2 (0x04) clear => content encrypted;
//	              bit0 (0x01) set => decrypt with the all-zero key
//	0x1A0   4     ExeFS offset, media units, relative to partition start
package cci

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sargunv/cci2cia/internal/ciaerr"
	"github.com/sargunv/cci2cia/internal/util"
)

const (
	ncchHeaderSize        = 0x200
	ncchMagicOffset       = 0x100
	ncchMagic             = "NCCH"
	ncchProductCodeOffset = 0x150
	ncchProductCodeLen    = 16
	ncchExtHeaderHashOff  = 0x160
	ncchExtHeaderHashLen  = 0x20
	ncchCryptoByteOffset  = 0x18F
	ncchExeFSOffsetOffset = 0x1A0

	cryptoByteNoCrypto = 0x04
	cryptoByteZeroKey  = 0x01

	// ExtHeaderSize is the length of the NCCH ExtHeader region.
	ExtHeaderSize = 0x400
)

// NCCHInfo holds the fields of a game-partition NCCH header needed to
// decrypt it and re-encrypt it as an SD title.
type NCCHInfo struct {
	// Offset is the NCCH header's absolute byte offset within the CCI.
	Offset uint32
	// ProductCode is the ASCII game code, e.g. "CTR-P-ALGE".
	ProductCode string
	// RawHeader is the unmodified 0x200-byte NCCH header.
	RawHeader [ncchHeaderSize]byte
	// KeyY is the partition's half of the AES key pair, the first 16
	// bytes of the header's RSA signature.
	KeyY [16]byte
	// Encrypted reports whether the partition's ExtHeader/ExeFS/RomFS
	// content is AES-CTR encrypted.
	Encrypted bool
	// ZeroKey reports whether Encrypted content uses the all-zero key
	// instead of the scrambled KeyX/KeyY key.
	ZeroKey bool
	// ExeFSOffset is the ExeFS region's byte offset relative to Offset.
	ExeFSOffset uint32
}

// ReadNCCH reads and validates the NCCH header for the game partition
// described by gameCXI.
func ReadNCCH(r io.ReaderAt, gameCXI PartitionRange) (*NCCHInfo, error) {
	var info NCCHInfo
	info.Offset = gameCXI.Offset

	if _, err := r.ReadAt(info.RawHeader[:], int64(gameCXI.Offset)); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", fmt.Errorf("reading NCCH header: %w", err))
	}

	magic := string(info.RawHeader[ncchMagicOffset : ncchMagicOffset+4])
	if magic != ncchMagic {
		return nil, ciaerr.New(ciaerr.NotANCCH, "", fmt.Errorf("missing NCCH magic, found %q", magic))
	}

	copy(info.KeyY[:], info.RawHeader[0:16])

	info.ProductCode = util.ExtractASCII(info.RawHeader[ncchProductCodeOffset : ncchProductCodeOffset+ncchProductCodeLen])

	cryptoByte := info.RawHeader[ncchCryptoByteOffset]
	info.Encrypted = cryptoByte&cryptoByteNoCrypto == 0
	info.ZeroKey = cryptoByte&cryptoByteZeroKey != 0

	info.ExeFSOffset = binary.LittleEndian.Uint32(info.RawHeader[ncchExeFSOffsetOffset:]) * MediaUnit

	return &info, nil
}

// ExtHeaderHash returns the ExtHeader SHA-256 hash stored in the NCCH header.
func (n *NCCHInfo) ExtHeaderHash() [ncchExtHeaderHashLen]byte {
	var h [ncchExtHeaderHashLen]byte
	copy(h[:], n.RawHeader[ncchExtHeaderHashOff:ncchExtHeaderHashOff+ncchExtHeaderHashLen])
	return h
}

// PatchExtHeaderHash overwrites the ExtHeader hash field of RawHeader,
// as required after the ExtHeader is patched into an SD title.
func (n *NCCHInfo) PatchExtHeaderHash(h [ncchExtHeaderHashLen]byte) {
	copy(n.RawHeader[ncchExtHeaderHashOff:ncchExtHeaderHashOff+ncchExtHeaderHashLen], h[:])
}

// Package cia writes the CTR Importable Archive container: a fixed
// archive header, a certificate chain, a ticket+TMD template, the
// content bodies, and a meta region — with content hashes and a few
// TMD/ticket fields back-patched once they are known.
//
// https://www.3dbrew.org/wiki/CIA
// https://www.3dbrew.org/wiki/Title_metadata
package cia

// Archive layout. archiveHeaderSize is the nominal size of the fixed
// header block (0x20 bytes of scalar fields + the 0x2000-byte content
// index bitfield); the actual cert-chain start is the next 64-byte
// boundary past it.
const (
	archiveHeaderSize = 0x2020
	certChainSize     = 0xA00
	ticketSize        = 0x350
	preChunkPadSize   = 0x96C

	// ReadSize is the streaming block size used when copying content
	// bodies from the CCI into the CIA.
	ReadSize = 0x800000
)

// Back-patch offsets, absolute from the start of the CIA file. These
// land inside the ticket+TMD template supplied by the caller (a fixed,
// pre-signed retail template — this converter only ever edits the
// fields listed here, never the signature).
const (
	ticketTitleIDOffset       = 0x2C1C
	tmdTitleIDOffset          = 0x2F4C
	tmdSaveSizeOffset         = 0x2F5A
	tmdContentCountOffset     = 0x2F9F
	tmdInfoRecordsHashOffset  = 0x2FA4
	tmdInfoContentCountOffset = 0x2FC7
	gameCXIHashOffset         = 0x38D4
	firstExtraContentHashOff  = 0x3904
)

// TMD size grows by 0x30 for each content beyond the first (the game
// executable CXI, which is always present).
const (
	baseTMDSize       = 0xB34
	tmdSizePerContent = 0x30
	chunkRecordSize   = 0x30
)

// Meta region (spec.md §4.7): dependency list, padding, a fixed end
// mark, more padding, then the SMDH icon.
const (
	metaDependencyListSize = 0x180
	metaTitleInfoPadSize   = 0x180
	metaEndMark            = 0x00000002
	metaFooterPadSize      = 0xFC
)

// ContentID identifies which of the three possible CIA contents a
// ChunkRecord describes. Numeric values double as both the content ID
// and the content index.
type ContentID uint32

const (
	ContentGameExecutable ContentID = 0
	ContentManual         ContentID = 1
	ContentDLPChild       ContentID = 2
)

// contentIndexBit is the bit this content sets in the TMD content
// index bitfield's first byte (spec.md §3: bit 7 = content 0, bit 6 =
// content 1, bit 5 = content 2).
func (c ContentID) contentIndexBit() byte {
	return 0x80 >> uint(c)
}

package cia

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sargunv/cci2cia/internal/ciaerr"
)

// metaSize is the fixed size of the meta region this converter always
// emits: dependency list + padding + end mark + padding + SMDH icon.
const metaSize = metaDependencyListSize + metaTitleInfoPadSize + 4 + metaFooterPadSize + 0x36C0

// Observer receives progress callbacks while content is streamed.
// Implementations must tolerate being nil-checked away: pass
// convert.NopObserver{} rather than nil.
type Observer interface {
	OnPhase(name string)
	OnBytes(delta int64)
}

// Header carries the fields WriteHeader needs to emit the CIA's fixed
// prefix. Contents must be supplied in emission order: the game
// executable (ContentGameExecutable) first, then Manual and DLPChild
// if present.
type Header struct {
	Contents []Content
}

func (h Header) tmdSize() uint32 {
	return baseTMDSize + tmdSizePerContent*uint32(len(h.Contents)-1)
}

func (h Header) contentIndexByte() byte {
	var b byte
	for _, c := range h.Contents {
		b |= c.ID.contentIndexBit()
	}
	return b
}

func (h Header) totalContentSize() uint64 {
	var total uint64
	for _, c := range h.Contents {
		total += c.Size
	}
	return total
}

// Writer emits a CIA file: a buffered sequential writer for the bulk
// of the data, plus direct seeks on the underlying file for the
// handful of fields that can only be known after streaming (content
// hashes, chunk-record/info hashes, a few TMD/ticket fields).
type Writer struct {
	path         string
	file         *os.File
	buf          *bufio.Writer
	pos          int64
	chunkRecords []ChunkRecord
}

// NewWriter creates path (failing if it already exists unless
// overwrite is set) and returns a Writer ready for WriteHeader.
func NewWriter(path string, overwrite bool) (*Writer, error) {
	flags := os.O_RDWR | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, path, fmt.Errorf("creating CIA: %w", err))
	}
	return &Writer{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, ReadSize),
	}, nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.buf.Write(b)
	w.pos += int64(n)
	if err != nil {
		return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("writing CIA: %w", err))
	}
	return nil
}

func (w *Writer) writeZeros(n int) error {
	return w.write(make([]byte, n))
}

// flushAndSeek flushes the buffered writer, seeks the underlying file
// to offset, and returns a function that restores the write cursor to
// where streaming had left off. Every back-patch goes through this so
// the buffered writes after it land at the correct position.
func (w *Writer) flushAndSeek(offset int64) (restore func() error, err error) {
	if err := w.buf.Flush(); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("flushing CIA: %w", err))
	}
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("seeking CIA: %w", err))
	}
	return func() error {
		if _, err := w.file.Seek(w.pos, io.SeekStart); err != nil {
			return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("restoring CIA cursor: %w", err))
		}
		return nil
	}, nil
}

func (w *Writer) patchAt(offset int64, data []byte) error {
	restore, err := w.flushAndSeek(offset)
	if err != nil {
		return err
	}
	if _, err := w.file.Write(data); err != nil {
		return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("patching CIA at %#x: %w", offset, err))
	}
	return restore()
}

// WriteHeader emits the CIA's fixed prefix: the archive header, the
// certificate chain, the ticket+TMD template, and a zeroed
// chunk-records/TMD-padding placeholder sized for h.Contents.
func (w *Writer) WriteHeader(h Header, certChain, ticketTMD []byte) error {
	fixed := make([]byte, 0, 33)
	putU32 := func(v uint32) { fixed = binary.LittleEndian.AppendUint32(fixed, v) }
	putU16 := func(v uint16) { fixed = binary.LittleEndian.AppendUint16(fixed, v) }

	putU32(archiveHeaderSize)
	putU16(0) // type
	putU16(0) // version
	putU32(certChainSize)
	putU32(ticketSize)
	putU32(h.tmdSize())
	putU32(metaSize)
	// Content size: CIA header fields are little-endian; content size
	// is a 64-bit field, written here as two 32-bit LE words (low, high).
	total := h.totalContentSize()
	putU32(uint32(total))
	putU32(uint32(total >> 32))
	fixed = append(fixed, h.contentIndexByte())

	if err := w.write(fixed); err != nil {
		return err
	}
	// Pad out to the 64-byte-aligned start of the certificate chain.
	if err := w.writeZeros(0x201F); err != nil {
		return err
	}
	if err := w.write(certChain); err != nil {
		return err
	}
	if err := w.write(ticketTMD); err != nil {
		return err
	}
	if err := w.writeZeros(preChunkPadSize); err != nil {
		return err
	}

	w.chunkRecords = make([]ChunkRecord, len(h.Contents))
	for i, c := range h.Contents {
		w.chunkRecords[i] = ChunkRecord{ID: c.ID, Index: uint16(c.ID), Size: c.Size}
	}
	for _, cr := range w.chunkRecords {
		if err := w.write(cr.Bytes()); err != nil {
			return err
		}
	}

	extra := len(h.Contents) - 1
	if err := w.writeZeros(0xC + 0x10*extra); err != nil {
		return err
	}
	return nil
}

// StreamContent copies size bytes from r into the CIA, hashing them
// with SHA-256 as it goes, in ReadSize-sized blocks, reporting
// progress via obs. It records the resulting hash against content's
// chunk record for the later PatchChunkAndInfoHashes call and patches
// that content's hash slot immediately.
func (w *Writer) StreamContent(content ContentID, r io.Reader, size int64, obs Observer) ([32]byte, error) {
	var hash [32]byte
	h := sha256.New()
	left := size
	buf := make([]byte, ReadSize)
	for left > 0 {
		chunk := buf
		if int64(len(chunk)) > left {
			chunk = chunk[:left]
		}
		n, err := io.ReadFull(r, chunk)
		if err != nil {
			return hash, ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("reading content body: %w", err))
		}
		if err := w.write(chunk[:n]); err != nil {
			return hash, err
		}
		h.Write(chunk[:n])
		left -= int64(n)
		obs.OnBytes(int64(n))
	}
	copy(hash[:], h.Sum(nil))

	for i := range w.chunkRecords {
		if w.chunkRecords[i].ID == content {
			w.chunkRecords[i].Hash = hash
		}
	}
	if err := w.PatchContentHash(content, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

// PatchContentHash writes a single content's SHA-256 hash into its
// fixed slot: the first content's hash lives inside the ticket/TMD
// template at gameCXIHashOffset; every later content's hash lives in a
// consecutive chunk-record-sized slot starting at
// firstExtraContentHashOff, positioned by where that content actually
// falls in the emission order (not by its numeric ContentID) — a
// DLPChild content without a preceding Manual content still lands in
// the first extra slot, not the second.
func (w *Writer) PatchContentHash(content ContentID, hash [32]byte) error {
	index := -1
	for i, cr := range w.chunkRecords {
		if cr.ID == content {
			index = i
			break
		}
	}
	if index < 0 {
		return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("no chunk record for content %d", content))
	}
	offset := int64(gameCXIHashOffset)
	if index > 0 {
		offset = firstExtraContentHashOff + int64(index-1)*chunkRecordSize
	}
	return w.patchAt(offset, hash[:])
}

// PatchTitleID writes id into both the ticket's and TMD's title-ID
// fields, big-endian.
func (w *Writer) PatchTitleID(id uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	if err := w.patchAt(ticketTitleIDOffset, buf[:]); err != nil {
		return err
	}
	return w.patchAt(tmdTitleIDOffset, buf[:])
}

// PatchSaveSize writes the SD-title save-data-size field (copied
// verbatim from the ExtHeader) into the TMD.
func (w *Writer) PatchSaveSize(b [4]byte) error {
	return w.patchAt(tmdSaveSizeOffset, b[:])
}

// PatchContentCount writes n into both locations the TMD stores the
// content count (the content-info record and the TMD header proper).
func (w *Writer) PatchContentCount(n byte) error {
	if err := w.patchAt(tmdContentCountOffset, []byte{n}); err != nil {
		return err
	}
	return w.patchAt(tmdInfoContentCountOffset, []byte{n})
}

// PatchChunkAndInfoHashes computes and writes the TMD's content chunk
// records hash and content info records hash, once every content's
// own hash has been patched in via StreamContent. Must be called after
// all StreamContent calls and before Close.
func (w *Writer) PatchChunkAndInfoHashes() error {
	count := byte(len(w.chunkRecords))

	records := make([]byte, 0, chunkRecordSize*len(w.chunkRecords))
	for _, cr := range w.chunkRecords {
		records = append(records, cr.Bytes()...)
	}
	chunkHash := sha256.Sum256(records)
	if err := w.patchAt(tmdInfoContentCountOffset+1, chunkHash[:]); err != nil {
		return err
	}

	infoSHA := sha256.New()
	var countField [4]byte
	countField[3] = count
	infoSHA.Write(countField[:])
	infoSHA.Write(chunkHash[:])
	infoSHA.Write(make([]byte, 0x8DC))
	infoHash := infoSHA.Sum(nil)
	return w.patchAt(tmdInfoRecordsHashOffset, infoHash)
}

// WriteMeta appends the CIA meta region: the ExtHeader dependency
// list, padding, a fixed end mark, more padding, and the SMDH icon.
func (w *Writer) WriteMeta(dependencyList, icon []byte) error {
	if err := w.write(dependencyList); err != nil {
		return err
	}
	if err := w.writeZeros(metaTitleInfoPadSize); err != nil {
		return err
	}
	var endMark [4]byte
	binary.LittleEndian.PutUint32(endMark[:], metaEndMark)
	if err := w.write(endMark[:]); err != nil {
		return err
	}
	if err := w.writeZeros(metaFooterPadSize); err != nil {
		return err
	}
	return w.write(icon)
}

// Close flushes any buffered data and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("flushing CIA: %w", err))
	}
	if err := w.file.Close(); err != nil {
		return ciaerr.New(ciaerr.IoFailure, w.path, fmt.Errorf("closing CIA: %w", err))
	}
	return nil
}

// Package convert drives the CCI to CIA conversion pipeline: read the
// NCSD/NCCH/ExeFS structure, derive the per-title AES key, decrypt and
// patch the ExtHeader into an SD title, pull the SMDH icon, and stream
// everything into a CIA container with the hashes and a few TMD/ticket
// fields it implies.
package convert

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sargunv/cci2cia/internal/ciaerr"
	"github.com/sargunv/cci2cia/lib/cci"
	"github.com/sargunv/cci2cia/lib/cia"
	"github.com/sargunv/cci2cia/lib/ncchcrypto"
)

// sdTitleFlagOffset is the ExtHeader byte whose bit 1 (sdTitleFlagBit)
// marks a title as SD-installable rather than cartridge-only.
const (
	sdTitleFlagOffset = 0xD
	sdTitleFlagBit    = 0x02

	dependencyListStart = 0x40
	dependencyListEnd   = 0x1C0
	saveSizeStart       = 0x1C0
	saveSizeEnd         = 0x1C4
)

// Config carries the support files a conversion needs. None of them
// are touched by this package; internal/support loads them once and
// the caller passes them through for every input file.
type Config struct {
	KeyX      [16]byte
	CertChain []byte
	TicketTMD []byte
}

// Observer receives phase and byte-progress callbacks during a
// conversion, so the core transform never depends on a terminal.
type Observer interface {
	OnPhase(name string)
	OnBytes(delta int64)
}

// NopObserver discards every callback. Useful in tests and as the
// default when no progress reporting was requested.
type NopObserver struct{}

func (NopObserver) OnPhase(string) {}
func (NopObserver) OnBytes(int64)  {}

// Convert reads the CCI at inputPath and writes outputDir/<stem>.cia,
// returning the path it wrote. overwrite controls whether an existing
// output file is replaced. Any failure is a *ciaerr.Error; the caller
// is responsible for removing a partially-written output file.
func Convert(inputPath, stem, outputDir string, overwrite bool, cfg Config, obs Observer) (string, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return "", ciaerr.New(ciaerr.IoFailure, inputPath, fmt.Errorf("opening CCI: %w", err))
	}
	defer in.Close()

	obs.OnPhase("Reading NCSD header")
	header, err := cci.ReadHeader(in)
	if err != nil {
		return "", annotatePath(err, inputPath)
	}
	titleIDHex := fmt.Sprintf("%016X", header.TitleID)

	ncchInfo, err := cci.ReadNCCH(in, header.GameCXI)
	if err != nil {
		return "", annotatePath(err, inputPath)
	}

	key, err := deriveKey(cfg.KeyX, ncchInfo)
	if err != nil {
		return "", annotatePath(err, inputPath)
	}

	obs.OnPhase("Verifying ExtHeader")
	extHeader, err := readExtHeader(in, header.GameCXI.Offset, ncchInfo, key, titleIDHex)
	if err != nil {
		return "", annotatePath(err, inputPath)
	}

	obs.OnPhase("Patching ExtHeader")
	extHeader[sdTitleFlagOffset] |= sdTitleFlagBit
	newExtHeaderHash := sha256.Sum256(extHeader)
	dependencyList := append([]byte(nil), extHeader[dependencyListStart:dependencyListEnd]...)
	var saveSize [4]byte
	copy(saveSize[:], extHeader[saveSizeStart:saveSizeEnd])
	ncchInfo.PatchExtHeaderHash(newExtHeaderHash)

	finalExtHeader := extHeader
	if ncchInfo.Encrypted {
		iv, err := ncchcrypto.ExtHeaderIV(titleIDHex)
		if err != nil {
			return "", ciaerr.New(ciaerr.IoFailure, inputPath, err)
		}
		finalExtHeader, err = ncchcrypto.Decrypt(key, iv, extHeader)
		if err != nil {
			return "", ciaerr.New(ciaerr.IoFailure, inputPath, err)
		}
	}

	obs.OnPhase("Extracting SMDH icon")
	icon, err := readIcon(in, header.GameCXI.Offset, ncchInfo, key, titleIDHex)
	if err != nil {
		return "", annotatePath(err, inputPath)
	}

	contents := []cia.Content{{ID: cia.ContentGameExecutable, Size: uint64(header.GameCXI.Size)}}
	if header.ManualCFA.Present() {
		contents = append(contents, cia.Content{ID: cia.ContentManual, Size: uint64(header.ManualCFA.Size)})
	}
	if header.DLPChildCFA.Present() {
		contents = append(contents, cia.Content{ID: cia.ContentDLPChild, Size: uint64(header.DLPChildCFA.Size)})
	}

	outputPath := fmt.Sprintf("%s/%s.cia", outputDir, stem)
	w, err := cia.NewWriter(outputPath, overwrite)
	if err != nil {
		return "", err
	}
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	obs.OnPhase("Writing CIA header")
	if err := w.WriteHeader(cia.Header{Contents: contents}, cfg.CertChain, cfg.TicketTMD); err != nil {
		return "", err
	}
	if err := w.PatchContentCount(byte(len(contents))); err != nil {
		return "", err
	}
	if err := w.PatchTitleID(header.TitleID); err != nil {
		return "", err
	}
	if err := w.PatchSaveSize(saveSize); err != nil {
		return "", err
	}

	obs.OnPhase("Writing Game Executable CXI")
	cxiPrefix := append(append([]byte(nil), ncchInfo.RawHeader[:]...), finalExtHeader...)
	cxiBodyOffset := int64(header.GameCXI.Offset) + cci.ExtHeaderSize + 0x200
	cxiBodySize := int64(header.GameCXI.Size) - cci.ExtHeaderSize - 0x200
	cxiReader := io.MultiReader(bytes.NewReader(cxiPrefix), io.NewSectionReader(in, cxiBodyOffset, cxiBodySize))
	if _, err := w.StreamContent(cia.ContentGameExecutable, cxiReader, int64(header.GameCXI.Size), obs); err != nil {
		return "", err
	}

	if header.ManualCFA.Present() {
		obs.OnPhase("Writing Manual CFA")
		r := io.NewSectionReader(in, int64(header.ManualCFA.Offset), int64(header.ManualCFA.Size))
		if _, err := w.StreamContent(cia.ContentManual, r, int64(header.ManualCFA.Size), obs); err != nil {
			return "", err
		}
	}
	if header.DLPChildCFA.Present() {
		obs.OnPhase("Writing Download Play child CFA")
		r := io.NewSectionReader(in, int64(header.DLPChildCFA.Offset), int64(header.DLPChildCFA.Size))
		if _, err := w.StreamContent(cia.ContentDLPChild, r, int64(header.DLPChildCFA.Size), obs); err != nil {
			return "", err
		}
	}

	obs.OnPhase("Updating hashes")
	if err := w.PatchChunkAndInfoHashes(); err != nil {
		return "", err
	}
	if err := w.WriteMeta(dependencyList, icon); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	closed = true

	return outputPath, nil
}

// deriveKey resolves the AES-128 key a partition's encrypted regions
// use: the all-zero key, the scrambled KeyX/KeyY key, or (for
// plaintext partitions) an unused zero value.
func deriveKey(keyX [16]byte, info *cci.NCCHInfo) ([16]byte, error) {
	if !info.Encrypted || info.ZeroKey {
		return [16]byte{}, nil
	}
	return ncchcrypto.ScrambleKey(keyX, info.KeyY), nil
}

func readExtHeader(r io.ReaderAt, gameCXIOffset uint32, info *cci.NCCHInfo, key [16]byte, titleIDHex string) ([]byte, error) {
	raw := make([]byte, cci.ExtHeaderSize)
	if _, err := r.ReadAt(raw, int64(gameCXIOffset)+0x200); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", fmt.Errorf("reading ExtHeader: %w", err))
	}
	if !info.Encrypted {
		return raw, nil
	}

	iv, err := ncchcrypto.ExtHeaderIV(titleIDHex)
	if err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", err)
	}
	decrypted, err := ncchcrypto.Decrypt(key, iv, raw)
	if err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", err)
	}

	got := sha256.Sum256(decrypted)
	if got != info.ExtHeaderHash() {
		return nil, ciaerr.New(ciaerr.ExtHeaderCorrupt, "", fmt.Errorf("expected %X, got %X", info.ExtHeaderHash(), got))
	}
	return decrypted, nil
}

func readIcon(r io.ReaderAt, gameCXIOffset uint32, info *cci.NCCHInfo, key [16]byte, titleIDHex string) ([]byte, error) {
	exeFSHeader, err := cci.ReadExeFSHeader(r, gameCXIOffset, info.ExeFSOffset)
	if err != nil {
		return nil, err
	}

	header := exeFSHeader[:]
	exeFSIV, err := ncchcrypto.ExeFSHeaderIV(titleIDHex)
	if err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", err)
	}
	if info.Encrypted {
		header, err = ncchcrypto.Decrypt(key, exeFSIV, header)
		if err != nil {
			return nil, ciaerr.New(ciaerr.IoFailure, "", err)
		}
	}

	entries := cci.ParseExeFSEntries(header)
	icon, ok := cci.FindIcon(entries)
	if !ok {
		// Matches the original converter's behavior: a title with no
		// SMDH icon entry still produces a CIA, with a zeroed icon.
		return make([]byte, cci.IconSize), nil
	}

	at := cci.IconAbsoluteOffset(gameCXIOffset, info.ExeFSOffset, icon)
	raw := make([]byte, cci.IconSize)
	if _, err := r.ReadAt(raw, at); err != nil {
		return nil, ciaerr.New(ciaerr.IoFailure, "", fmt.Errorf("reading icon: %w", err))
	}
	if !info.Encrypted {
		return raw, nil
	}

	iconIV := ncchcrypto.IconIV(exeFSIV, icon.Offset)
	return ncchcrypto.Decrypt(key, iconIV, raw)
}

// annotatePath fills in the path on a *ciaerr.Error that did not have
// one yet, so a lower-level read failure still names the input file
// by the time it reaches the CLI.
func annotatePath(err error, path string) error {
	var e *ciaerr.Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

package convert

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/sargunv/cci2cia/internal/ciaerr"
)

const (
	fixtureGameCXIOffset  = 0x200
	fixtureExtHeaderOff   = fixtureGameCXIOffset + 0x200
	fixtureExeFSRelOffset = 0x600 // from partition start, bytes
	fixtureExeFSAbsOffset = fixtureGameCXIOffset + fixtureExeFSRelOffset
	fixtureExeFSBodyAbs   = fixtureExeFSAbsOffset + 0x200
	fixtureIconSize       = 0x36C0
	fixtureGameCXISize    = 0x4000
	fixtureTotalSize      = fixtureGameCXIOffset + fixtureGameCXISize
)

// buildFixture writes a minimal, unencrypted, single-partition CCI to
// path: an NCSD header with only the game-executable partition
// present, an NCCH header flagging no encryption, a zeroed ExtHeader,
// and an ExeFS with a single "icon" entry of IconSize bytes.
func buildFixture(t *testing.T, path string, titleID uint64, withIcon bool) []byte {
	t.Helper()
	buf := make([]byte, fixtureTotalSize)

	// NCSD header.
	copy(buf[0x100:0x104], "NCSD")
	binary.LittleEndian.PutUint64(buf[0x108:], titleID)
	binary.LittleEndian.PutUint32(buf[0x120:], fixtureGameCXIOffset/0x200) // offset, media units
	binary.LittleEndian.PutUint32(buf[0x124:], fixtureGameCXISize/0x200)  // size, media units

	// NCCH header.
	ncch := buf[fixtureGameCXIOffset:]
	copy(ncch[0x100:0x104], "NCCH")
	ncch[0x18F] = 0x04 // no-crypto bit set: partition is unencrypted
	binary.LittleEndian.PutUint32(ncch[0x1A0:], fixtureExeFSRelOffset/0x200)

	// ExeFS header: one entry, "icon", covering the whole icon body.
	if withIcon {
		exeFSHeader := buf[fixtureExeFSAbsOffset : fixtureExeFSAbsOffset+0x40]
		copy(exeFSHeader[0:8], "icon")
		binary.LittleEndian.PutUint32(exeFSHeader[8:], 0)
		binary.LittleEndian.PutUint32(exeFSHeader[12:], fixtureIconSize)

		icon := buf[fixtureExeFSBodyAbs : fixtureExeFSBodyAbs+fixtureIconSize]
		for i := range icon {
			icon[i] = byte(i)
		}
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return buf
}

func testConfig() Config {
	return Config{
		CertChain: bytes.Repeat([]byte{0xAA}, 0xA00),
		TicketTMD: bytes.Repeat([]byte{0xBB}, 0x1000),
	}
}

func readAt(t *testing.T, path string, offset int64, n int) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, offset); err != nil {
		t.Fatalf("ReadAt(%#x): %v", offset, err)
	}
	return buf
}

func TestConvertUnencryptedWithIcon(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "game.3ds")
	const titleID = 0x0004000000043500
	fixture := buildFixture(t, inputPath, titleID, true)

	outputPath, err := Convert(inputPath, "game", dir, true, testConfig(), NopObserver{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if outputPath != filepath.Join(dir, "game.cia") {
		t.Errorf("outputPath = %q, want %q", outputPath, filepath.Join(dir, "game.cia"))
	}

	wantTitleID := make([]byte, 8)
	binary.BigEndian.PutUint64(wantTitleID, titleID)
	if got := readAt(t, outputPath, 0x2C1C, 8); !bytes.Equal(got, wantTitleID) {
		t.Errorf("ticket title ID = %X, want %X", got, wantTitleID)
	}
	if got := readAt(t, outputPath, 0x2F4C, 8); !bytes.Equal(got, wantTitleID) {
		t.Errorf("tmd title ID = %X, want %X", got, wantTitleID)
	}

	// Reconstruct what the game-executable content's hash should be:
	// the raw NCCH header (with its ExtHeader-hash field patched to
	// match the rewritten ExtHeader), then the ExtHeader with the
	// SD-title flag bit patched in, then everything from the ExeFS
	// start onward.
	extHeader := append([]byte{}, fixture[fixtureExtHeaderOff:fixtureExtHeaderOff+0x400]...)
	extHeader[0xD] |= 0x02
	newExtHeaderHash := sha256.Sum256(extHeader)

	ncchHeader := append([]byte{}, fixture[fixtureGameCXIOffset:fixtureGameCXIOffset+0x200]...)
	copy(ncchHeader[0x160:0x180], newExtHeaderHash[:])

	wantPrefix := append(append([]byte{}, ncchHeader...), extHeader...)
	wantBody := fixture[fixtureExeFSAbsOffset : fixtureGameCXIOffset+fixtureGameCXISize]
	wantHash := sha256.Sum256(append(wantPrefix, wantBody...))

	if got := readAt(t, outputPath, 0x38D4, 32); !bytes.Equal(got, wantHash[:]) {
		t.Errorf("game executable content hash = %X, want %X", got, wantHash[:])
	}

	if got := readAt(t, outputPath, 0x2F9F, 1); got[0] != 1 {
		t.Errorf("tmd content count = %d, want 1", got[0])
	}

	// The icon that was written into the meta region should match the
	// fixture's icon bytes exactly (unencrypted, so no decrypt step).
	wantIcon := fixture[fixtureExeFSBodyAbs : fixtureExeFSBodyAbs+fixtureIconSize]
	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	iconStart := info.Size() - fixtureIconSize
	if got := readAt(t, outputPath, iconStart, fixtureIconSize); !bytes.Equal(got, wantIcon) {
		t.Error("trailing icon bytes in output do not match fixture icon")
	}
}

func TestConvertIconAbsentWritesZeroedIcon(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "noicon.3ds")
	buildFixture(t, inputPath, 0x0004000000099800, false)

	outputPath, err := Convert(inputPath, "noicon", dir, true, testConfig(), NopObserver{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	iconStart := info.Size() - fixtureIconSize
	got := readAt(t, outputPath, iconStart, fixtureIconSize)
	for i, b := range got {
		if b != 0 {
			t.Fatalf("icon byte %d = %#x, want 0 (no icon entry, should fall back to zeroed icon)", i, b)
		}
	}
}

func TestConvertRejectsNonCCI(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "notacci.3ds")
	if err := os.WriteFile(inputPath, make([]byte, 0x400), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Convert(inputPath, "notacci", dir, true, testConfig(), NopObserver{})
	if !ciaerr.Is(err, ciaerr.NotACCI) {
		t.Fatalf("expected NotACCI, got %v", err)
	}
}

// Package support locates and validates the three files a conversion
// needs beyond the input CCI itself: a retail boot ROM (the source of
// the AES key-X), a retail certificate chain, and a ticket+TMD
// template.
//
// Grounded on original_source/conv/src/get_bins.rs's get_boot9 /
// get_cert_chain_retail / get_ticket_tmd search order.
package support

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sargunv/cci2cia/internal/ciaerr"
)

// boot9KeyXFingerprint is the MD5 of the 16 bytes at offset 0x59D0 in a
// genuine retail boot9, used to reject a corrupt or dev-unit dump
// before it is handed to the key scramble.
const boot9KeyXFingerprint = "e35bf88330f4f1b2bb6fd5b870a679ca"

const (
	boot9KeyXOffset  = 0x59D0
	boot9KeyXSize    = 0x10
	boot9ProtFullLen = 0x10000
	boot9ProtSkip    = 0x8000
)

// Files holds the support data a conversion job needs, already
// extracted from disk: the boot9-derived key-X, the retail certificate
// chain, and the ticket+TMD template.
type Files struct {
	KeyX      [16]byte
	CertChain []byte
	TicketTMD []byte
}

// Load searches, for each support file, the current directory then
// ~/.3ds, in the same order as the original converter, and returns the
// first match for each. extraDirs are searched before ~/.3ds, after
// the current directory, letting a caller add more search locations
// (e.g. a directory named on the command line) without changing the
// default search order.
func Load(extraDirs ...string) (*Files, error) {
	keyX, err := loadKeyX(extraDirs)
	if err != nil {
		return nil, err
	}
	certChain, err := loadFile("cert_chain_retail.bin", extraDirs)
	if err != nil {
		return nil, err
	}
	ticketTMD, err := loadFile("ticket_tmd.bin", extraDirs)
	if err != nil {
		return nil, err
	}
	return &Files{KeyX: keyX, CertChain: certChain, TicketTMD: ticketTMD}, nil
}

func loadKeyX(extraDirs []string) ([16]byte, error) {
	var keyX [16]byte

	path, err := findFirst([]string{"boot9.bin", "boot9_prot.bin"}, extraDirs)
	if err != nil {
		return keyX, err
	}

	f, err := os.Open(path)
	if err != nil {
		return keyX, ciaerr.New(ciaerr.SupportFileMissing, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return keyX, ciaerr.New(ciaerr.IoFailure, path, err)
	}
	offset := int64(boot9KeyXOffset)
	if info.Size() == boot9ProtFullLen {
		offset += boot9ProtSkip
	}

	var raw [boot9KeyXSize]byte
	if _, err := f.ReadAt(raw[:], offset); err != nil {
		return keyX, ciaerr.New(ciaerr.SupportFileCorrupt, path, fmt.Errorf("reading key-X: %w", err))
	}

	got := fmt.Sprintf("%x", md5.Sum(raw[:]))
	if got != boot9KeyXFingerprint {
		return keyX, ciaerr.New(ciaerr.SupportFileCorrupt, path, fmt.Errorf("key-X fingerprint %s does not match a retail boot9", got))
	}

	keyX = raw
	return keyX, nil
}

func loadFile(name string, extraDirs []string) ([]byte, error) {
	path, err := findFirst([]string{name}, extraDirs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ciaerr.New(ciaerr.SupportFileMissing, path, err)
	}
	return data, nil
}

// findFirst returns the first existing, readable file among names
// searched in "." and each of extraDirs, then in ~/.3ds, in that
// order.
func findFirst(names []string, extraDirs []string) (string, error) {
	dirs := append([]string{"."}, extraDirs...)
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".3ds"))
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if isReadableFile(candidate) {
				return candidate, nil
			}
		}
	}
	return "", ciaerr.New(ciaerr.SupportFileMissing, names[0], fmt.Errorf("none of %v found in %v", names, dirs))
}

func isReadableFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	var probe [1]byte
	_, err = f.Read(probe[:])
	return err == nil || err == io.EOF
}

package ncchcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

// Region suffixes appended to the 16-hex-digit title ID to build a
// region's CTR IV (3dbrew "Console Unique ID", NCCH AES counters).
const (
	extHeaderIVSuffix = "0100000000000000"
	exeFSIVSuffix     = "0200000000000000"
)

// ExtHeaderIV builds the CTR IV for the ExtHeader region.
func ExtHeaderIV(titleIDHex string) ([16]byte, error) {
	return regionIV(titleIDHex, extHeaderIVSuffix)
}

// ExeFSHeaderIV builds the CTR IV for the ExeFS header region.
func ExeFSHeaderIV(titleIDHex string) ([16]byte, error) {
	return regionIV(titleIDHex, exeFSIVSuffix)
}

// IconIV derives the icon's CTR IV from the ExeFS-header IV by adding
// the icon's block offset within the ExeFS, plus the 0x20 blocks
// occupied by the 0x200-byte ExeFS header region itself.
func IconIV(exeFSHeaderIV [16]byte, iconOffsetInExeFS uint32) [16]byte {
	blockOffset := uint64(iconOffsetInExeFS>>4) + 0x20
	return beBytesToU128(exeFSHeaderIV).addSmall(blockOffset).bytes()
}

func regionIV(titleIDHex, suffix string) ([16]byte, error) {
	var iv [16]byte
	raw, err := hex.DecodeString(titleIDHex + suffix)
	if err != nil || len(raw) != 16 {
		return iv, fmt.Errorf("ncchcrypto: malformed title ID %q: %w", titleIDHex, err)
	}
	copy(iv[:], raw)
	return iv, nil
}

// NewCTR returns an AES-128-CTR stream cipher keyed and counted by the
// given big-endian key and IV. The returned Stream produces output of
// the same length as its input via XORKeyStream.
func NewCTR(key, iv [16]byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("ncchcrypto: %w", err)
	}
	return cipher.NewCTR(block, iv[:]), nil
}

// Decrypt is a convenience wrapper that runs AES-128-CTR over src and
// returns a fresh buffer, leaving src untouched. The ExtHeader path
// runs this twice (decrypt, then re-encrypt after patching) with the
// same key and IV, which round-trips because CTR is its own inverse.
func Decrypt(key, iv [16]byte, src []byte) ([]byte, error) {
	stream, err := NewCTR(key, iv)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	stream.XORKeyStream(dst, src)
	return dst, nil
}

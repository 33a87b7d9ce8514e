// Package ncchcrypto implements the NCCH key-ladder scramble and the
// AES-128-CTR region codec used to decrypt/re-encrypt the ExtHeader,
// ExeFS header, and SMDH icon.
//
// https://www.3dbrew.org/wiki/AES_Registers
// https://www.3dbrew.org/wiki/NCCH#KeyX_KeyY_Descriptor
package ncchcrypto

import "math/bits"

// u128 is a 128-bit unsigned integer as a (high, low) pair of uint64s,
// used instead of an arbitrary-precision bigint for the key scramble
// and CTR-IV arithmetic; it converts only to and from fixed 16-byte
// big-endian buffers.
type u128 struct {
	hi, lo uint64
}

// beBytesToU128 interprets a 16-byte big-endian buffer as a u128.
func beBytesToU128(b [16]byte) u128 {
	return u128{
		hi: beU64(b[0:8]),
		lo: beU64(b[8:16]),
	}
}

// bytes renders v back to a 16-byte big-endian buffer.
func (v u128) bytes() [16]byte {
	var out [16]byte
	putBEU64(out[0:8], v.hi)
	putBEU64(out[8:16], v.lo)
	return out
}

func beU64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func putBEU64(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// rotl rotates v left by n bits within the full 128-bit width.
func (v u128) rotl(n uint) u128 {
	n %= 128
	if n == 0 {
		return v
	}
	if n < 64 {
		return u128{
			hi: (v.hi << n) | (v.lo >> (64 - n)),
			lo: (v.lo << n) | (v.hi >> (64 - n)),
		}
	}
	n -= 64
	return u128{
		hi: (v.lo << n) | (v.hi >> (64 - n)),
		lo: (v.hi << n) | (v.lo >> (64 - n)),
	}
}

func (v u128) xor(o u128) u128 {
	return u128{hi: v.hi ^ o.hi, lo: v.lo ^ o.lo}
}

// add computes (v+o) mod 2^128.
func (v u128) add(o u128) u128 {
	lo, carry := bits.Add64(v.lo, o.lo, 0)
	hi, _ := bits.Add64(v.hi, o.hi, carry)
	return u128{hi: hi, lo: lo}
}

// addSmall adds a small non-negative value to v, as used when deriving
// the icon IV from the ExeFS-header IV.
func (v u128) addSmall(n uint64) u128 {
	return v.add(u128{lo: n})
}

// RotateLeft128 rotates the 128-bit big-endian value v left by bits,
// wrapping within the 128-bit width.
func RotateLeft128(v [16]byte, bits uint) [16]byte {
	return beBytesToU128(v).rotl(bits).bytes()
}

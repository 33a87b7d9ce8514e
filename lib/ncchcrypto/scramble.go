package ncchcrypto

// scrambleConstant is the fixed additive constant in the NCCH key
// scramble (3dbrew "NCCH KeyX KeyY Descriptor").
var scrambleConstant = u128{hi: 0x1FF9E9AAC5FE0408, lo: 0x024591DC5D52768A}

// ScrambleKey derives the 128-bit AES normal key from key-X (boot9) and
// key-Y (per-partition, NCCH header offset 0x0), both big-endian:
//
//	p1 = rotl128(keyX, 2)
//	p2 = p1 XOR keyY
//	p3 = (p2 + 0x1FF9E9AAC5FE0408024591DC5D52768A) mod 2^128
//	normalKey = rotl128(p3, 87)
func ScrambleKey(keyX, keyY [16]byte) [16]byte {
	p1 := beBytesToU128(keyX).rotl(2)
	p2 := p1.xor(beBytesToU128(keyY))
	p3 := p2.add(scrambleConstant)
	return p3.rotl(87).bytes()
}

package ncchcrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex16(t *testing.T, s string) [16]byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		t.Fatalf("bad test fixture %q: %v", s, err)
	}
	var out [16]byte
	copy(out[:], raw)
	return out
}

func TestScrambleKeyVector(t *testing.T) {
	keyX := mustHex16(t, "B98E95CECA3E4D171F76A94DE934C053")
	keyY := mustHex16(t, "6D6FAEFB2391CF40A87A46DAE4BD438F")
	want := mustHex16(t, "E4CEE05CA5D5A7F1B568B37F926BF33A")

	got := ScrambleKey(keyX, keyY)
	if !bytes.Equal(got[:], want[:]) {
		t.Fatalf("ScrambleKey() = %X, want %X", got, want)
	}
}

func TestRotateLeft128Composes(t *testing.T) {
	v := mustHex16(t, "0123456789ABCDEF0123456789ABCDEF")

	full := RotateLeft128(v, 87)
	step := RotateLeft128(RotateLeft128(v, 40), 47)
	if full != step {
		t.Fatalf("rotl(v,87) = %X, rotl(rotl(v,40),47) = %X", full, step)
	}

	if got := RotateLeft128(v, 128); got != v {
		t.Fatalf("rotl(v,128) = %X, want identity %X", got, v)
	}
	if got := RotateLeft128(v, 0); got != v {
		t.Fatalf("rotl(v,0) = %X, want identity %X", got, v)
	}
}

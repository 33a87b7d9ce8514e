package ncchcrypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestRegionIVDerivation(t *testing.T) {
	const titleID = "0004000000030500"

	extIV, err := ExtHeaderIV(titleID)
	if err != nil {
		t.Fatalf("ExtHeaderIV: %v", err)
	}
	wantExt := mustHex16(t, titleID+"0100000000000000")
	if extIV != wantExt {
		t.Fatalf("ExtHeaderIV = %X, want %X", extIV, wantExt)
	}

	exeIV, err := ExeFSHeaderIV(titleID)
	if err != nil {
		t.Fatalf("ExeFSHeaderIV: %v", err)
	}
	wantExe := mustHex16(t, titleID+"0200000000000000")
	if exeIV != wantExe {
		t.Fatalf("ExeFSHeaderIV = %X, want %X", exeIV, wantExe)
	}
}

func TestRegionIVRejectsShortTitleID(t *testing.T) {
	if _, err := ExtHeaderIV("0004"); err == nil {
		t.Fatal("expected error for short title ID, got nil")
	}
}

func TestIconIVOffsetsPastHeader(t *testing.T) {
	titleID := "0004000000030500"
	base, err := ExeFSHeaderIV(titleID)
	if err != nil {
		t.Fatalf("ExeFSHeaderIV: %v", err)
	}

	// Icon sits at ExeFS-relative offset 0x400 in most titles.
	got := IconIV(base, 0x400)

	// 0x400 >> 4 == 0x40, plus the fixed 0x20-block header skip == 0x60.
	baseN := beBytesToU128(base)
	want := baseN.addSmall(0x60).bytes()
	if got != want {
		t.Fatalf("IconIV = %X, want %X", got, want)
	}
}

func TestCTRRoundTrip(t *testing.T) {
	key := mustHex16(t, "000102030405060708090A0B0C0D0E0F")
	iv := mustHex16(t, "0004000000030500" + "0100000000000000")

	plain := bytes.Repeat([]byte("the quick brown fox "), 40)

	stream, err := NewCTR(key, iv)
	if err != nil {
		t.Fatalf("NewCTR: %v", err)
	}
	cipherText := make([]byte, len(plain))
	stream.XORKeyStream(cipherText, plain)

	if bytes.Equal(cipherText, plain) {
		t.Fatal("ciphertext must not equal plaintext")
	}

	decStream, err := NewCTR(key, iv)
	if err != nil {
		t.Fatalf("NewCTR: %v", err)
	}
	roundTripped := make([]byte, len(cipherText))
	decStream.XORKeyStream(roundTripped, cipherText)

	if !bytes.Equal(roundTripped, plain) {
		t.Fatalf("round trip mismatch: got %q, want %q", roundTripped, plain)
	}
}

func TestDecryptHelperMatchesStream(t *testing.T) {
	key := mustHex16(t, "000102030405060708090A0B0C0D0E0F")
	iv := mustHex16(t, strings.Repeat("00", 15)+"FF")
	original := []byte("ExtHeader payload bytes go here")
	src := append([]byte(nil), original...)

	got, err := Decrypt(key, iv, src)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	stream, err := NewCTR(key, iv)
	if err != nil {
		t.Fatalf("NewCTR: %v", err)
	}
	want := make([]byte, len(src))
	stream.XORKeyStream(want, src)

	if !bytes.Equal(got, want) {
		t.Fatalf("Decrypt() = %X, want %X", got, want)
	}
	if !bytes.Equal(src, original) {
		t.Fatal("Decrypt must not mutate its source buffer")
	}
}

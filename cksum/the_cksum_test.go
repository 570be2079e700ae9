package cksum

import (
	"encoding/binary"
	"testing"
)

func TestFoldNoZero(t *testing.T) {
	if 0xffff != Fold(0) {
		t.Fatalf("zero sum must fold to 0xffff, got %#x", Fold(0))
	}
}

func TestFoldCarriesAcrossWords(t *testing.T) {
	// 0x1ffff folds once to 0x10000, which must fold again to 0x1
	got := Fold(0x1ffff)
	want := uint16(0xffff - 1)
	if want != got {
		t.Fatalf("Fold(0x1ffff) = %#x, want %#x", got, want)
	}
}

// P1: for any 20-byte IPv4 header with checksum zeroed, summing the header
// with its own computed checksum installed yields the one's-complement
// identity 0xffff.
func TestSumRoundTrip(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	hdr[8] = 64
	hdr[9] = 1
	binary.BigEndian.PutUint16(hdr[2:], 20)
	copy(hdr[12:16], []byte{192, 0, 2, 1})
	copy(hdr[16:20], []byte{10, 0, 0, 1})

	binary.BigEndian.PutUint16(hdr[10:12], 0)
	c := Sum(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], c)

	if 0xffff != Sum(hdr) {
		t.Fatalf("checksum round trip failed: got %#x, want 0xffff", Sum(hdr))
	}
}

// P2: incremental update of a single changed word must equal recomputing
// the checksum of the header with that word already changed.
func TestIncrementalEquivalence(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x45
	hdr[8] = 64 // ttl
	hdr[9] = 1  // protocol
	binary.BigEndian.PutUint16(hdr[2:], 20)
	copy(hdr[12:16], []byte{192, 0, 2, 1})
	copy(hdr[16:20], []byte{10, 0, 0, 1})
	binary.BigEndian.PutUint16(hdr[10:12], 0)
	orig := Sum(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], orig)

	oldWord := binary.BigEndian.Uint16(hdr[8:10])
	hdr[8] = 233 // new ttl
	newWord := binary.BigEndian.Uint16(hdr[8:10])
	delta := int32(newWord) - int32(oldWord)

	got := Incremental(orig, delta)

	binary.BigEndian.PutUint16(hdr[10:12], 0)
	want := Sum(hdr)

	if want != got {
		t.Fatalf("incremental update = %#x, want %#x", got, want)
	}
}

func TestHtonsHtonl(t *testing.T) {
	if 0x0201 != Htons(0x0102) {
		t.Fatalf("Htons wrong")
	}
	if 0x04030201 != Htonl(0x01020304) {
		t.Fatalf("Htonl wrong")
	}
}

package audio

import (
	"bytes"
	"testing"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing(16)

	if n := r.Write([]byte("hello")); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}
	if r.FillCount() != 5 {
		t.Errorf("FillCount = %d, want 5", r.FillCount())
	}
	if r.FreeCount() != 11 {
		t.Errorf("FreeCount = %d, want 11", r.FreeCount())
	}
	if got := r.ReadView(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("ReadView = %q", got)
	}

	r.AdvanceRead(5)
	if r.FillCount() != 0 {
		t.Errorf("FillCount after advance = %d, want 0", r.FillCount())
	}
}

// The read view must stay contiguous even when the data wraps around the
// end of the storage.
func TestRingWrapContiguous(t *testing.T) {
	r := NewRing(16)

	r.Write([]byte("aaaaaaaaaaaa")) // 12 bytes
	r.AdvanceRead(12)

	// 10 more bytes: 4 before the wrap point, 6 after.
	r.Write([]byte("0123456789"))

	got := r.ReadView()
	if !bytes.Equal(got, []byte("0123456789")) {
		t.Fatalf("ReadView = %q, want the wrapped write in order", got)
	}
}

func TestRingOverflowDrops(t *testing.T) {
	r := NewRing(8)

	if n := r.Write([]byte("01234567")); n != 8 {
		t.Fatalf("Write = %d, want 8", n)
	}
	if n := r.Write([]byte("x")); n != 0 {
		t.Errorf("Write on a full ring = %d, want 0", n)
	}

	r.AdvanceRead(3)
	if n := r.Write([]byte("abcde")); n != 3 {
		t.Errorf("Write on a partially drained ring = %d, want 3", n)
	}
	if got := r.ReadView(); !bytes.Equal(got, []byte("34567abc")) {
		t.Errorf("ReadView = %q, want %q", got, "34567abc")
	}
}

// Interleaved writes and reads across many wraps keep byte order intact.
func TestRingInterleaved(t *testing.T) {
	r := NewRing(32)

	var produced, consumed []byte
	next := byte(0)
	for step := 0; step < 200; step++ {
		chunk := make([]byte, (step*7)%13+1)
		for i := range chunk {
			chunk[i] = next
			next++
		}
		n := r.Write(chunk)
		produced = append(produced, chunk[:n]...)

		if step%3 == 0 {
			view := r.ReadView()
			take := len(view) / 2
			consumed = append(consumed, view[:take]...)
			r.AdvanceRead(take)
		}
	}
	consumed = append(consumed, r.ReadView()...)

	if !bytes.Equal(consumed, produced) {
		t.Fatal("bytes read differ from bytes written")
	}
}

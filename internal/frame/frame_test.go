package frame

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"epd213/internal/epd"
)

func TestNewSize(t *testing.T) {
	f := New(epd.Panel213, 0xFF)
	if len(f.Pix) != 16*250 {
		t.Fatalf("len = %d, want 4000", len(f.Pix))
	}
	for i, b := range f.Pix {
		if b != 0xFF {
			t.Fatalf("Pix[%d] = %#x", i, b)
		}
	}
}

func TestBitAddressing(t *testing.T) {
	f := New(epd.Panel213, 0x00)

	f.SetBit(0, 0, true)
	f.SetBit(9, 1, true)
	f.SetBit(121, 249, true)
	f.SetBit(122, 0, true) // padding column, ignored
	f.SetBit(-1, 0, true)

	if f.Pix[0] != 0x80 {
		t.Errorf("Pix[0] = %#x, want 0x80", f.Pix[0])
	}
	if f.Pix[16+1] != 0x40 {
		t.Errorf("Pix[17] = %#x, want 0x40", f.Pix[17])
	}
	// x=121 is byte 15, bit 1 from the left.
	if got := f.Pix[249*16+15]; got != 0x40 {
		t.Errorf("last byte = %#x, want 0x40", got)
	}
	if !f.Bit(9, 1) || f.Bit(8, 1) || f.Bit(200, 0) {
		t.Error("Bit() disagrees with SetBit()")
	}

	f.SetBit(0, 0, false)
	if f.Pix[0] != 0 {
		t.Errorf("clear failed: %#x", f.Pix[0])
	}
}

func TestEncodePolarity(t *testing.T) {
	f := New(epd.Panel213, 0x0F)

	if got := f.Encode(AsIs); &got[0] != &f.Pix[0] {
		t.Error("AsIs should not copy")
	}
	inv := f.Encode(Inverted)
	if inv[0] != 0xF0 || f.Pix[0] != 0x0F {
		t.Errorf("Inverted = %#x, source = %#x", inv[0], f.Pix[0])
	}
}

func TestParsePolarity(t *testing.T) {
	for in, want := range map[string]Polarity{"firmware": AsIs, "inverted": Inverted} {
		got, err := ParsePolarity(in)
		if err != nil || got != want {
			t.Errorf("ParsePolarity(%q) = %v, %v", in, got, err)
		}
		if got.String() != in {
			t.Errorf("String() = %q, want %q", got.String(), in)
		}
	}
	if _, err := ParsePolarity("white"); err == nil {
		t.Error("expected error")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.bin")
	data := bytes.Repeat([]byte{0xAA}, epd.Panel213.FrameSize())
	if err := os.WriteFile(good, data, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(good, epd.Panel213)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(f.Pix, data) {
		t.Error("content mismatch")
	}

	short := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(short, data[:3999], 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(short, epd.Panel213); err == nil {
		t.Error("expected length error")
	}

	if _, err := Load(filepath.Join(dir, "missing.bin"), epd.Panel213); err == nil {
		t.Error("expected read error")
	}
}

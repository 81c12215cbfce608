package ingest

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestCodecStream(t *testing.T) {
	var buf bytes.Buffer
	in := []struct{ w, h, c int }{{4, 3, 1}, {2, 2, 3}}
	for i, s := range in {
		if err := EncodeFrame(&buf, testFrame(uint64(i+1), s.w, s.h, s.c)); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	for i, s := range in {
		f, err := DecodeFrame(&buf)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		want := testFrame(uint64(i+1), s.w, s.h, s.c)
		if f.Seq != want.Seq || !f.Timestamp.Equal(want.Timestamp) || f.Shape() != want.Shape() || !bytes.Equal(f.Pix, want.Pix) {
			t.Fatalf("frame %d mismatch: %+v", i, f)
		}
	}
	if _, err := DecodeFrame(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestCodecRejectsBadInput(t *testing.T) {
	good, err := AppendFrame(nil, testFrame(1, 3, 3, 1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(good) != frameHeaderSize+9 {
		t.Fatalf("encoded length %d", len(good))
	}

	bad := append([]byte("XXXX"), good[4:]...)
	if _, err := UnmarshalFrame(bad); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if _, err := UnmarshalFrame(good[:len(good)-1]); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape for short body, got %v", err)
	}
	if _, err := DecodeFrame(bytes.NewReader(good[:len(good)-1])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
	if _, err := DecodeFrame(bytes.NewReader(good[:10])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF in header, got %v", err)
	}

	huge := append([]byte(nil), good...)
	huge[20], huge[21], huge[22], huge[23] = 0x7f, 0xff, 0xff, 0xff
	if _, err := DecodeFrame(bytes.NewReader(huge)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	f := testFrame(1, 3, 3, 1)
	f.Pix = f.Pix[:4]
	if _, err := AppendFrame(nil, f); !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape on encode, got %v", err)
	}
}

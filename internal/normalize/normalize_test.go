package normalize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"vibroscope/internal/model"
)

func TestFromGraySubImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = uint8(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3))
	f, err := FromImage(sub, 1)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	want := []uint8{5, 6, 9, 10}
	if f.Width != 2 || f.Height != 2 || !bytes.Equal(f.Pix, want) {
		t.Fatalf("got %dx%d %v", f.Width, f.Height, f.Pix)
	}
}

func TestFromRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	f, err := FromImage(img, 3)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if !bytes.Equal(f.Pix, []uint8{255, 0, 0, 10, 20, 30}) {
		t.Fatalf("rgb pix %v", f.Pix)
	}
	gray, err := FromImage(img, 1)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if gray.Channels != 1 || gray.Pix[0] == 0 {
		t.Fatalf("red pixel lost in luma conversion: %v", gray.Pix)
	}
	if _, err := FromImage(img, 2); err == nil {
		t.Fatalf("two channels accepted")
	}
}

func TestDecodePNGRoundTrip(t *testing.T) {
	src := model.Frame{Width: 3, Height: 2, Channels: 1, Pix: []uint8{1, 2, 3, 4, 5, 6}}
	img, err := ToGray(src)
	if err != nil {
		t.Fatalf("to gray: %v", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	f, err := Decode(&buf, 1, 9, ts)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Seq != 9 || !f.Timestamp.Equal(ts) || !bytes.Equal(f.Pix, src.Pix) {
		t.Fatalf("round trip mismatch %+v", f)
	}
	if _, err := Decode(bytes.NewReader([]byte("not an image")), 1, 1, ts); err == nil {
		t.Fatalf("garbage decoded")
	}
}

package normalize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	"vibroscope/internal/model"
)

// MaxPixels bounds decoded images; larger inputs are rejected rather than
// buffered.
const MaxPixels = 8192 * 8192

var ErrImageTooLarge = errors.New("image exceeds pixel limit")

// Decode reads a PNG, JPEG or GIF image and converts it to a frame with the
// requested channel count (1 for luma, 3 for RGB).
func Decode(r io.Reader, channels int, seq uint64, ts time.Time) (model.Frame, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return model.Frame{}, fmt.Errorf("decode image: %w", err)
	}
	f, err := FromImage(img, channels)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%s image: %w", format, err)
	}
	f.Seq, f.Timestamp = seq, ts.UTC()
	return f, nil
}

// FromImage converts img into an unsequenced frame.
func FromImage(img image.Image, channels int) (model.Frame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return model.Frame{}, fmt.Errorf("empty image bounds %v", b)
	}
	if w*h > MaxPixels {
		return model.Frame{}, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	switch channels {
	case 1:
		return model.Frame{Width: w, Height: h, Channels: 1, Pix: luma(img)}, nil
	case 3:
		return model.Frame{Width: w, Height: h, Channels: 3, Pix: rgb(img)}, nil
	default:
		return model.Frame{}, fmt.Errorf("unsupported channel count %d", channels)
	}
}

func luma(img image.Image) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h)
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			off := g.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*w:(y+1)*w], g.Pix[off:off+w])
		}
		return pix
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return pix
}

func rgb(img image.Image) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[i], pix[i+1], pix[i+2] = uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			i += 3
		}
	}
	return pix
}

// ToGray builds an image from a single-channel frame, for writing fixtures
// and debug dumps.
func ToGray(f model.Frame) (*image.Gray, error) {
	if f.Channels != 1 || !f.Valid() {
		return nil, fmt.Errorf("frame %d is not a valid single-channel frame", f.Seq)
	}
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img, nil
}

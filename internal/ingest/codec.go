package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"vibroscope/internal/model"
)

// Wire layout, big endian:
//
//	"VBF1" | seq u64 | unix_nano i64 | width u32 | height u32 | channels u8 | pix
//
// pix holds width*height*channels bytes, row-major, channel-interleaved.
const (
	frameMagic      = "VBF1"
	frameHeaderSize = 4 + 8 + 8 + 4 + 4 + 1
	MaxFrameBytes   = 64 << 20
)

var (
	ErrBadMagic      = errors.New("frame does not start with VBF1")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrBadShape      = errors.New("frame shape is invalid")
)

// AppendFrame appends the wire encoding of f to dst.
func AppendFrame(dst []byte, f model.Frame) ([]byte, error) {
	if err := checkShape(f.Width, f.Height, f.Channels); err != nil {
		return dst, err
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return dst, fmt.Errorf("%w: %d bytes for %dx%dx%d", ErrBadShape, len(f.Pix), f.Width, f.Height, f.Channels)
	}
	var ts int64
	if !f.Timestamp.IsZero() {
		ts = f.Timestamp.UnixNano()
	}
	dst = append(dst, frameMagic...)
	dst = binary.BigEndian.AppendUint64(dst, f.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.Width))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.Height))
	dst = append(dst, uint8(f.Channels))
	return append(dst, f.Pix...), nil
}

func EncodeFrame(w io.Writer, f model.Frame) error {
	buf, err := AppendFrame(make([]byte, 0, frameHeaderSize+len(f.Pix)), f)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// DecodeFrame reads exactly one frame from r. A clean end of stream before
// the header returns io.EOF.
func DecodeFrame(r io.Reader) (model.Frame, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return model.Frame{}, fmt.Errorf("frame header: %w", err)
		}
		return model.Frame{}, err
	}
	f, size, err := parseHeader(hdr[:])
	if err != nil {
		return model.Frame{}, err
	}
	f.Pix = make([]uint8, size)
	if _, err := io.ReadFull(r, f.Pix); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return model.Frame{}, fmt.Errorf("frame %d pixels: %w", f.Seq, err)
	}
	return f, nil
}

// UnmarshalFrame decodes a single frame occupying all of b.
func UnmarshalFrame(b []byte) (model.Frame, error) {
	if len(b) < frameHeaderSize {
		return model.Frame{}, fmt.Errorf("frame header: %w", io.ErrUnexpectedEOF)
	}
	f, size, err := parseHeader(b[:frameHeaderSize])
	if err != nil {
		return model.Frame{}, err
	}
	body := b[frameHeaderSize:]
	if len(body) != size {
		return model.Frame{}, fmt.Errorf("%w: %d pixel bytes, header declares %d", ErrBadShape, len(body), size)
	}
	f.Pix = make([]uint8, size)
	copy(f.Pix, body)
	return f, nil
}

func parseHeader(hdr []byte) (model.Frame, int, error) {
	if string(hdr[:4]) != frameMagic {
		return model.Frame{}, 0, ErrBadMagic
	}
	f := model.Frame{
		Seq:      binary.BigEndian.Uint64(hdr[4:12]),
		Width:    int(binary.BigEndian.Uint32(hdr[20:24])),
		Height:   int(binary.BigEndian.Uint32(hdr[24:28])),
		Channels: int(hdr[28]),
	}
	if ns := int64(binary.BigEndian.Uint64(hdr[12:20])); ns != 0 {
		f.Timestamp = time.Unix(0, ns).UTC()
	}
	if err := checkShape(f.Width, f.Height, f.Channels); err != nil {
		return model.Frame{}, 0, err
	}
	return f, f.Width * f.Height * f.Channels, nil
}

func checkShape(width, height, channels int) error {
	if width <= 0 || height <= 0 || channels <= 0 || channels > 4 {
		return fmt.Errorf("%w: %dx%dx%d", ErrBadShape, width, height, channels)
	}
	if width > MaxFrameBytes || height > MaxFrameBytes || width*height*channels > MaxFrameBytes {
		return fmt.Errorf("%w: %dx%dx%d", ErrFrameTooLarge, width, height, channels)
	}
	return nil
}

// Package pixbuf defines the pixel layout exchanged with the native library.
//
// A Buffer is a flat sequence of Height*Width*3 bytes: rows top to bottom,
// pixels left to right, each pixel stored as blue, green, red, one byte per
// channel, with no row padding. This is the layout of an 8-bit 3-channel
// OpenCV matrix. The buffer does not describe itself, so Height and Width
// always travel with it.
package pixbuf

import (
	"errors"
	"fmt"
	"image"
)

// Channels is the number of bytes per pixel.
const Channels = 3

// MaxDimension is the largest accepted height or width.
const MaxDimension = 1<<16 - 1

var (
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	ErrSizeMismatch      = errors.New("pixel buffer size does not match dimensions")
)

// Buffer is a decoded raster image in BGR order.
type Buffer struct {
	Pix    []byte
	Height int
	Width  int
}

// New returns a buffer over pix without copying it.
func New(pix []byte, height, width int) Buffer {
	return Buffer{Pix: pix, Height: height, Width: width}
}

// Validate checks that the buffer length matches the stated dimensions. The
// native library trusts the dimensions, so a buffer that fails here must
// never be handed to it.
func (b Buffer) Validate() error {
	if b.Height <= 0 || b.Width <= 0 || b.Height > MaxDimension || b.Width > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Width, b.Height)
	}
	if want := b.Height * b.Width * Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%dx%d",
			ErrSizeMismatch, len(b.Pix), want, b.Width, b.Height, Channels)
	}
	return nil
}

// Bounds returns the image rectangle the buffer covers.
func (b Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// FromImage converts img into a new buffer. The result is in image-local
// coordinates: the pixel at img.Bounds().Min lands at offset 0. A nil img
// gives an empty buffer, which fails Validate.
func FromImage(img image.Image) Buffer {
	if img == nil {
		return Buffer{}
	}
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	b := Buffer{Pix: make([]byte, w*h*Channels), Height: h, Width: w}

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):]
			out := b.Pix[y*w*Channels:]
			for x := 0; x < w; x++ {
				out[x*3+0] = row[x*4+2]
				out[x*3+1] = row[x*4+1]
				out[x*3+2] = row[x*4+0]
			}
		}
	case *image.NRGBA:
		// Alpha is dropped, not composited: the detector only sees color.
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):]
			out := b.Pix[y*w*Channels:]
			for x := 0; x < w; x++ {
				out[x*3+0] = row[x*4+2]
				out[x*3+1] = row[x*4+1]
				out[x*3+2] = row[x*4+0]
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(r.Min.X, r.Min.Y+y):]
			out := b.Pix[y*w*Channels:]
			for x := 0; x < w; x++ {
				v := row[x]
				out[x*3+0] = v
				out[x*3+1] = v
				out[x*3+2] = v
			}
		}
	default:
		i := 0
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				cr, cg, cb, _ := img.At(x, y).RGBA()
				b.Pix[i+0] = uint8(cb >> 8)
				b.Pix[i+1] = uint8(cg >> 8)
				b.Pix[i+2] = uint8(cr >> 8)
				i += Channels
			}
		}
	}

	return b
}

// Image returns a copy of the buffer as an RGBA image.
func (b Buffer) Image() *image.RGBA {
	img := image.NewRGBA(b.Bounds())
	for i, j := 0, 0; i+2 < len(b.Pix) && j+3 < len(img.Pix); i, j = i+Channels, j+4 {
		img.Pix[j+0] = b.Pix[i+2]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+0]
		img.Pix[j+3] = 0xff
	}
	return img
}

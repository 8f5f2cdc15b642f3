// Package matbuf converts OpenCV matrices into pixel buffers.
package matbuf

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dimuls/jdlib/pixbuf"
)

var (
	ErrEmptyMat = errors.New("empty mat")

	// ErrUnreadable is returned by Read for missing or undecodable files.
	ErrUnreadable = errors.New("unsupported or missing image file")
)

// FromMat copies an 8-bit matrix with 1, 3 or 4 channels into a BGR buffer.
// Three-channel matrices are assumed to be BGR already, as gocv.IMRead
// returns them.
func FromMat(m gocv.Mat) (pixbuf.Buffer, error) {
	if m.Empty() {
		return pixbuf.Buffer{}, ErrEmptyMat
	}

	var code gocv.ColorConversionCode

	switch m.Type() {
	case gocv.MatTypeCV8UC3:
		return pixbuf.New(m.ToBytes(), m.Rows(), m.Cols()), nil
	case gocv.MatTypeCV8UC1:
		code = gocv.ColorGrayToBGR
	case gocv.MatTypeCV8UC4:
		code = gocv.ColorBGRAToBGR
	default:
		return pixbuf.Buffer{}, fmt.Errorf("unsupported mat type %d with %d channels", m.Type(), m.Channels())
	}

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(m, &bgr, code)

	return pixbuf.New(bgr.ToBytes(), bgr.Rows(), bgr.Cols()), nil
}

// Fit is FromMat on a copy of m shrunk so that neither side exceeds maxSide,
// keeping the aspect ratio. It also returns the factor that maps buffer
// coordinates back onto m. A maxSide of zero, or a matrix already small
// enough, is converted as is with a factor of 1.
func Fit(m gocv.Mat, maxSide uint) (pixbuf.Buffer, float64, error) {
	if m.Empty() {
		return pixbuf.Buffer{}, 0, ErrEmptyMat
	}

	w, h := m.Cols(), m.Rows()
	if maxSide == 0 || (w <= int(maxSide) && h <= int(maxSide)) {
		b, err := FromMat(m)
		return b, 1, err
	}

	scale := float64(maxSide) / float64(max(w, h))
	size := image.Point{
		X: max(1, int(math.Round(float64(w)*scale))),
		Y: max(1, int(math.Round(float64(h)*scale))),
	}

	small := gocv.NewMat()
	defer small.Close()

	gocv.Resize(m, &small, size, 0, 0, gocv.InterpolationArea)

	b, err := FromMat(small)
	return b, float64(w) / float64(size.X), err
}

// Decode decodes an encoded image, such as the contents of a JPEG or PNG
// file, into a BGR matrix. The caller closes it.
func Decode(data []byte) (gocv.Mat, error) {
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if m.Empty() {
		m.Close()
		return gocv.Mat{}, ErrUnreadable
	}
	return m, nil
}

// Read decodes the image file at path into a BGR buffer.
func Read(path string) (pixbuf.Buffer, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return pixbuf.Buffer{}, fmt.Errorf("read image %s: %w", path, ErrUnreadable)
	}

	return FromMat(img)
}

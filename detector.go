package jdlib

import (
	"image"

	"github.com/dimuls/jdlib/pixbuf"
)

// DetectFace returns the bounding boxes of the faces in img, in the order the
// native detector reports them. See DetectFacePixels.
func (j *Jdlib) DetectFace(img image.Image) ([]image.Rectangle, error) {
	return j.detect(pixbuf.FromImage(img))
}

// DetectFacePixels is DetectFace over a BGR pixel buffer of height*width*3
// bytes. An image without faces gives an empty slice; ErrNoResult means the
// native library reported nothing at all.
func (j *Jdlib) DetectFacePixels(pixels []byte, height, width int) ([]image.Rectangle, error) {
	return j.detect(pixbuf.New(pixels, height, width))
}

func (j *Jdlib) detect(b pixbuf.Buffer) ([]image.Rectangle, error) {
	faces, err := j.run(opDetect, b)
	if err != nil {
		return nil, err
	}

	rects := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		rects[i] = f.Rect
	}

	return rects, nil
}

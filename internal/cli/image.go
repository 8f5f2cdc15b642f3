package cli

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/gallery"
	"github.com/dimuls/jdlib/pixbuf"
	"github.com/dimuls/jdlib/pixbuf/matbuf"
)

var blue = color.RGBA{B: 255}

// readImage decodes the image at path. The caller closes the returned Mat.
func readImage(path string) (gocv.Mat, pixbuf.Buffer, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, pixbuf.Buffer{}, fmt.Errorf("%w: %s", gallery.ErrUnreadable, path)
	}

	b, err := matbuf.FromMat(mat)
	if err != nil {
		mat.Close()
		return gocv.Mat{}, pixbuf.Buffer{}, fmt.Errorf("convert %s: %w", path, err)
	}

	return mat, b, nil
}

func embeddings(j *jdlib.Jdlib, path string) ([]jdlib.FaceDescriptor, error) {
	b, err := matbuf.Read(path)
	if errors.Is(err, matbuf.ErrUnreadable) {
		return nil, fmt.Errorf("%w: %w", gallery.ErrUnreadable, err)
	}
	if err != nil {
		return nil, err
	}

	return j.FaceEmbeddingsPixels(b.Pix, b.Height, b.Width)
}

// singleEmbedding returns the embedding of the only face on the photo.
func singleEmbedding(j *jdlib.Jdlib, path string) (jdlib.Descriptor, error) {
	faces, err := embeddings(j, path)
	if err != nil {
		return jdlib.Descriptor{}, err
	}
	if len(faces) != 1 {
		return jdlib.Descriptor{}, fmt.Errorf("%w: %d faces detected on %s", gallery.ErrNotOneFace, len(faces), path)
	}
	return *faces[0].Embedding, nil
}

func annotate(mat gocv.Mat, rects []image.Rectangle, out string) error {
	for _, r := range rects {
		gocv.Rectangle(&mat, r, blue, 2)
	}
	if !gocv.IMWrite(out, mat) {
		return fmt.Errorf("failed to write %s", out)
	}
	return nil
}

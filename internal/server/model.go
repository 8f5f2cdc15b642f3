package server

import (
	"image"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/pixbuf"
)

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Face struct {
	Rectangle Rect      `json:"rectangle"`
	Landmarks []Point   `json:"landmarks,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Response is the body of a successful operation. Found is false when the
// native library reported no result, which is different from finding no
// faces.
type Response struct {
	Success bool   `json:"success"`
	Found   bool   `json:"found"`
	Cached  bool   `json:"cached"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Faces   []Face `json:"faces"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func newRect(r image.Rectangle, factor float64) Rect {
	r = pixbuf.ScaleRect(r, factor)
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func rectFaces(rects []image.Rectangle, factor float64) []Face {
	faces := make([]Face, len(rects))
	for i, r := range rects {
		faces[i] = Face{Rectangle: newRect(r, factor)}
	}
	return faces
}

func descriptorFaces(descriptors []jdlib.FaceDescriptor, factor float64) []Face {
	faces := make([]Face, len(descriptors))
	for i, d := range descriptors {
		faces[i].Rectangle = newRect(d.Rectangle, factor)
		if len(d.Landmarks) > 0 {
			faces[i].Landmarks = make([]Point, len(d.Landmarks))
			for j, p := range d.Landmarks {
				p = pixbuf.ScalePoint(p, factor)
				faces[i].Landmarks[j] = Point{X: p.X, Y: p.Y}
			}
		}
		if d.Embedding != nil {
			faces[i].Embedding = append([]float32(nil), d.Embedding[:]...)
		}
	}
	return faces
}

package native

import "image"

// Face is one entry of a native result, in detection order.
type Face struct {
	Rect      image.Rectangle
	Points    []image.Point
	Embedding []float32
}

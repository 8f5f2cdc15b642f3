package pixbuf

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// Downscale shrinks img so that neither side exceeds maxSide, keeping the
// aspect ratio. It returns the resized image and the factor that maps its
// coordinates back onto img. Images already small enough, or a maxSide of
// zero, come back unchanged with a factor of 1.
func Downscale(img image.Image, maxSide uint) (image.Image, float64) {
	size := img.Bounds().Size()
	if maxSide == 0 || (size.X <= int(maxSide) && size.Y <= int(maxSide)) {
		return img, 1
	}

	small := resize.Thumbnail(maxSide, maxSide, img, resize.Lanczos3)
	if small.Bounds().Dx() == 0 {
		return img, 1
	}

	return small, float64(size.X) / float64(small.Bounds().Dx())
}

// ScalePoint maps a point found on a downscaled image back onto the original.
func ScalePoint(p image.Point, factor float64) image.Point {
	if factor == 1 {
		return p
	}
	return image.Point{
		X: int(math.Round(float64(p.X) * factor)),
		Y: int(math.Round(float64(p.Y) * factor)),
	}
}

// ScaleRect maps a rectangle found on a downscaled image back onto the original.
func ScaleRect(r image.Rectangle, factor float64) image.Rectangle {
	return image.Rectangle{Min: ScalePoint(r.Min, factor), Max: ScalePoint(r.Max, factor)}
}

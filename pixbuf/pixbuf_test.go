package pixbuf

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		size          int
		height, width int
		want          error
	}{
		{"exact", 30000, 100, 100, nil},
		{"one short", 29999, 100, 100, ErrSizeMismatch},
		{"one long", 30001, 100, 100, ErrSizeMismatch},
		{"single pixel", 3, 1, 1, nil},
		{"zero width", 0, 10, 0, ErrInvalidDimensions},
		{"negative height", 30, -1, 10, ErrInvalidDimensions},
		{"too tall", 3 * (MaxDimension + 1), MaxDimension + 1, 1, ErrInvalidDimensions},
		{"max side", 3 * MaxDimension, MaxDimension, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(make([]byte, tt.size), tt.height, tt.width).Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFromImageChannelOrder(t *testing.T) {
	c := color.RGBA{R: 10, G: 20, B: 30, A: 255}

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 1))
	nrgba := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	paletted := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{c})
	for x := 0; x < 2; x++ {
		rgba.Set(x, 0, c)
		nrgba.Set(x, 0, c)
	}

	for name, img := range map[string]image.Image{"rgba": rgba, "nrgba": nrgba, "generic": paletted} {
		t.Run(name, func(t *testing.T) {
			b := FromImage(img)
			if err := b.Validate(); err != nil {
				t.Fatal(err)
			}
			want := []byte{30, 20, 10, 30, 20, 10}
			if string(b.Pix) != string(want) {
				t.Errorf("Pix = %v, want %v", b.Pix, want)
			}
		})
	}
}

func TestFromImageGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 2))
	img.SetGray(0, 0, color.Gray{Y: 7})
	img.SetGray(0, 1, color.Gray{Y: 200})

	b := FromImage(img)
	want := []byte{7, 7, 7, 200, 200, 200}
	if string(b.Pix) != string(want) {
		t.Errorf("Pix = %v, want %v", b.Pix, want)
	}
}

func TestFromImageSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 3, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	sub := img.SubImage(image.Rect(2, 3, 4, 4))
	b := FromImage(sub)

	if b.Width != 2 || b.Height != 1 {
		t.Fatalf("Got %dx%d, want 2x1", b.Width, b.Height)
	}
	if b.Pix[0] != 3 || b.Pix[1] != 2 || b.Pix[2] != 1 {
		t.Errorf("First pixel = %v, want [3 2 1]", b.Pix[:3])
	}
}

func TestImageRoundTripsColor(t *testing.T) {
	b := New([]byte{30, 20, 10}, 1, 1)
	got := b.Image().RGBAAt(0, 0)
	if got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("RGBAAt = %v", got)
	}
}

func TestFromNilImageFailsValidation(t *testing.T) {
	if err := FromImage(nil).Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("Validate() = %v, want ErrInvalidDimensions", err)
	}
}

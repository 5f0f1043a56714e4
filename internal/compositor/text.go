package compositor

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// CaptionFace returns the italic face used for booth captions.
func CaptionFace(size float64) (font.Face, error) {
	return newFace(goitalic.TTF, size)
}

// MonoFace returns the monospace face used for dates and counters.
func MonoFace(size float64) (font.Face, error) {
	return newFace(gomono.TTF, size)
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// RenderText draws s on a transparent image sized to its bounds.
func RenderText(face font.Face, s string, c color.Color) *image.RGBA {
	m := face.Metrics()
	w := font.MeasureString(face, s).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, m.Ascent.Ceil()),
	}
	d.DrawString(s)
	return img
}

// RotateCCW rotates src a quarter turn counterclockwise.
func RotateCCW(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			di := out.PixOffset(y, w-1-x)
			copy(out.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return out
}

// DrawVerticalText draws s rotated so it reads bottom to top, centered on
// center.
func DrawVerticalText(dst draw.Image, face font.Face, s string, c color.Color, center image.Point) {
	rotated := RotateCCW(RenderText(face, s, c))
	rb := rotated.Bounds()
	if rb.Empty() {
		return
	}
	at := image.Pt(center.X-rb.Dx()/2, center.Y-rb.Dy()/2)
	draw.Draw(dst, rb.Add(at), rotated, image.Point{}, draw.Over)
}

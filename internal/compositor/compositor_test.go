package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/fpang/flipbook-booth/internal/style"
	"golang.org/x/image/draw"
)

// halves returns a source whose left half is red and right half is blue.
func halves(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func mustStyle(t *testing.T, id string) style.Spec {
	t.Helper()
	s, err := style.Builtin().Lookup(id)
	if err != nil {
		t.Fatalf("lookup %s: %v", id, err)
	}
	return s
}

func TestRenderBorderAndMirror(t *testing.T) {
	c := newTestCompositor(t)
	s := mustStyle(t, "minimal-black")

	out, err := c.Render(halves(1280, 720), s)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Bounds() != image.Rect(0, 0, 960, 540) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}

	// Border corner keeps the border color.
	if got := out.RGBAAt(959, 539); got != (color.RGBA{A: 255}) {
		t.Errorf("border pixel: got %v, want black", got)
	}

	layout, err := c.Layout(s)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	// Mirroring puts the source's right (blue) half on the left of the photo.
	left := out.RGBAAt(layout.Photo.Min.X+10, layout.Photo.Min.Y+layout.Photo.Dy()/2)
	right := out.RGBAAt(layout.Photo.Max.X-10, layout.Photo.Min.Y+layout.Photo.Dy()/2)
	if left.B < 200 || left.R > 50 {
		t.Errorf("left of photo should be blue after mirroring, got %v", left)
	}
	if right.R < 200 || right.B > 50 {
		t.Errorf("right of photo should be red after mirroring, got %v", right)
	}
}

func TestRenderCaptionUsesContrastColor(t *testing.T) {
	c := newTestCompositor(t)

	tests := []struct {
		name    string
		styleID string
		light   bool
	}{
		{name: "Dark border gets light caption", styleID: "minimal-black", light: true},
		{name: "Light border gets dark caption", styleID: "minimal-white", light: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustStyle(t, tt.styleID)
			out, err := c.Render(halves(640, 360), s)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			layout, _ := c.Layout(s)
			border := s.BorderColor.ToRGBA()

			found := false
			for y := 0; y < out.Bounds().Dy() && !found; y++ {
				for x := 0; x < layout.GutterW; x++ {
					p := out.RGBAAt(x, y)
					if p == border {
						continue
					}
					if tt.light && p.R > border.R {
						found = true
						break
					}
					if !tt.light && p.R < border.R {
						found = true
						break
					}
				}
			}
			if !found {
				t.Error("expected caption pixels in the gutter")
			}
		})
	}
}

func TestRenderRoundedCorners(t *testing.T) {
	c := newTestCompositor(t)
	s := mustStyle(t, "minimal-white")
	s.CornerRadius = 20

	out, err := c.Render(halves(1280, 720), s)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	layout, _ := c.Layout(s)

	corner := out.RGBAAt(layout.Photo.Min.X, layout.Photo.Min.Y)
	if corner != s.BorderColor.ToRGBA() {
		t.Errorf("rounded corner should show border, got %v", corner)
	}
	inside := out.RGBAAt(layout.Photo.Min.X+20, layout.Photo.Min.Y+20)
	if inside == s.BorderColor.ToRGBA() {
		t.Error("photo interior should not be border colored")
	}
}

func TestRenderVintageTint(t *testing.T) {
	c := newTestCompositor(t)
	plain := mustStyle(t, "vintage-mono")
	plain.Overlay = style.OverlayNone
	tinted := mustStyle(t, "vintage-mono")

	a, err := c.Render(halves(640, 360), plain)
	if err != nil {
		t.Fatalf("Render plain: %v", err)
	}
	b, err := c.Render(halves(640, 360), tinted)
	if err != nil {
		t.Fatalf("Render tinted: %v", err)
	}

	pa := a.RGBAAt(959, 539)
	pb := b.RGBAAt(959, 539)
	if pb.R <= pa.R {
		t.Errorf("tint should brighten the dark border: plain %v, tinted %v", pa, pb)
	}
}

func TestRenderThinSourceFillsPhoto(t *testing.T) {
	c := newTestCompositor(t)
	s := mustStyle(t, "minimal-white")
	layout, err := c.Layout(s)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	red := color.RGBA{R: 255, A: 255}

	for _, size := range []image.Point{{1, 1000}, {1, 2}, {3, 1}, {2000, 1}} {
		src := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		draw.Draw(src, src.Bounds(), image.NewUniform(red), image.Point{}, draw.Src)

		out, err := c.Render(src, s)
		if err != nil {
			t.Fatalf("%v: Render: %v", size, err)
		}
		center := out.RGBAAt(layout.Photo.Min.X+layout.Photo.Dx()/2, layout.Photo.Min.Y+layout.Photo.Dy()/2)
		if center != red {
			t.Errorf("%v: photo center got %v, want solid red", size, center)
		}
	}
}

func TestRenderErrors(t *testing.T) {
	c := newTestCompositor(t)

	if _, err := c.Render(image.NewRGBA(image.Rect(0, 0, 0, 0)), mustStyle(t, "minimal-white")); err != ErrEmptySource {
		t.Errorf("empty source: got %v, want ErrEmptySource", err)
	}

	s := mustStyle(t, "minimal-white")
	s.BorderThickness = 300
	if _, err := c.Render(halves(64, 36), s); err == nil {
		t.Error("expected degenerate layout error")
	}
}

func TestCompositeProducesJPEG(t *testing.T) {
	c := newTestCompositor(t)

	frame, err := c.Composite(halves(320, 240), mustStyle(t, "soft-gray"))
	if err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if frame.MIMEType != "image/jpeg" || frame.Width != 960 || frame.Height != 540 {
		t.Errorf("frame metadata: got %s %dx%d", frame.MIMEType, frame.Width, frame.Height)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 960 || img.Bounds().Dy() != 540 {
		t.Errorf("decoded size: got %v", img.Bounds())
	}

	if !strings.HasPrefix(frame.DataURI(), "data:image/jpeg;base64,") {
		t.Errorf("data uri prefix: got %.30s", frame.DataURI())
	}
}

func TestEndCard(t *testing.T) {
	c := newTestCompositor(t)

	frame, err := c.EndCard(mustStyle(t, "minimal-black"))
	if err != nil {
		t.Fatalf("EndCard: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(480, 270).RGBA()
	if r>>8 > 8 || g>>8 > 8 || b>>8 > 8 {
		t.Errorf("end card should be black, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "Zero width", opts: Options{Width: 0, Height: 540, Quality: 90}},
		{name: "Quality too high", opts: Options{Width: 960, Height: 540, Quality: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRotateCCW(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	marker := color.RGBA{R: 255, A: 255}
	src.SetRGBA(0, 0, marker) // start of text, top

	out := RotateCCW(src)
	if out.Bounds() != image.Rect(0, 0, 2, 3) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}
	// Text start moves to the bottom-left so it reads upward.
	if got := out.RGBAAt(0, 2); got != marker {
		t.Errorf("marker should be at (0,2), got %v", got)
	}
}

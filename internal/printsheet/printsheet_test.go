package printsheet

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/style"
)

func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func testFrame(t *testing.T, c color.RGBA) compositor.Frame {
	t.Helper()
	return compositor.Frame{Data: solidPNG(t, c), MIMEType: "image/png", Width: 64, Height: 64}
}

func minimalBlack() style.Spec {
	return style.Spec{ID: "minimal-black", BorderColor: style.MustParseHex("#000000"), BorderThickness: 16}
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestCells(t *testing.T) {
	tests := []struct {
		frames, want int
	}{
		{frames: 0, want: 3},
		{frames: 2, want: 3},
		{frames: 3, want: 6},
		{frames: 16, want: 18},
	}
	for _, tt := range tests {
		if got := Cells(tt.frames); got != tt.want {
			t.Errorf("Cells(%d) = %d, want %d", tt.frames, got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	if got := FileName(ts); got != "lets-take-a-moment-1700000000123.png" {
		t.Errorf("FileName: got %q", got)
	}
	if got := DateStamp(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)); got != "03/05/2026" {
		t.Errorf("DateStamp: got %q", got)
	}
}

func TestRenderLayout(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	in := Input{
		Style:  minimalBlack(),
		Frames: []compositor.Frame{testFrame(t, red)},
		Date:   time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
	}
	page, err := Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := page.Bounds(); b.Dx() != PageWidth*Scale || b.Dy() != PageHeight*Scale {
		t.Fatalf("page size: got %v", b)
	}

	if got := rgbaAt(page, 10, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("padding should be white, got %v", got)
	}
	// Cover gutter below the caption keeps the border color.
	if got := rgbaAt(page, 60, 60); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("cover border: got %v", got)
	}
	// Without a cover the photo area is the empty placeholder gray.
	if got := rgbaAt(page, 334, 188); got != emptyPhoto {
		t.Errorf("empty photo area: got %v", got)
	}
	// Second cell holds the frame, slightly desaturated.
	frame := rgbaAt(page, 800, 188)
	if frame.R < 220 || frame.G > 40 {
		t.Errorf("frame cell should be mostly red, got %v", frame)
	}
	if frame.G == 0 {
		t.Errorf("frame cell should be slightly desaturated, got %v", frame)
	}
	// Third cell is filler and stays white inside.
	if got := rgbaAt(page, 1300, 188); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("filler cell: got %v", got)
	}
}

func TestRenderCoverAndVintage(t *testing.T) {
	blue := color.RGBA{B: 255, A: 255}
	s := minimalBlack()
	in := Input{Style: s, Cover: solidPNG(t, blue)}

	page, err := Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := rgbaAt(page, 334, 188); got.B < 250 || got.R > 5 {
		t.Errorf("cover should fill the photo area, got %v", got)
	}

	s.Overlay = style.OverlayVintage
	in = Input{Style: s}
	page, err = Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := rgbaAt(page, 334, 188)
	if got.R >= emptyPhoto.R || got.B >= got.R {
		t.Errorf("vintage multiply should warm and darken the photo area, got %v", got)
	}
}

func TestRenderBadCoverLeavesPlaceholder(t *testing.T) {
	page, err := Render(Input{Style: minimalBlack(), Cover: []byte("not an image")})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := rgbaAt(page, 334, 188); got != emptyPhoto {
		t.Errorf("photo area: got %v", got)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render(Input{}); err == nil {
		t.Error("expected error for a style without an id")
	}
	in := Input{Style: minimalBlack(), Frames: []compositor.Frame{{Data: []byte("bad")}}}
	if _, err := Render(in); err == nil {
		t.Error("expected decode error")
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Input{Style: minimalBlack()}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds().Dx() != PageWidth*Scale {
		t.Errorf("width: got %d", img.Bounds().Dx())
	}
}

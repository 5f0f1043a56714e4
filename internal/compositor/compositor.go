// Package compositor draws camera frames into branded booth frames: border
// fill, left gutter with a rotated caption, a mirrored cover-fitted photo and
// an optional vintage tint. The same inputs always produce the same geometry.
package compositor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"

	"github.com/fpang/flipbook-booth/internal/geometry"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// Output defaults shared with the print sheet.
const (
	DefaultWidth          = 960
	DefaultHeight         = 540
	DefaultGutterFraction = 0.15
	DefaultQuality        = 90
	DefaultCaption        = "let's take a moment"
	DefaultCaptionSize    = 16.0
)

// vintageTint is rgba(200, 190, 180, 0.15).
var vintageTint = color.NRGBA{R: 200, G: 190, B: 180, A: 38}

// ErrEmptySource is returned when a source frame has no pixels, which happens
// while a camera is still negotiating its first frame.
var ErrEmptySource = errors.New("compositor: source frame is empty")

// Options configure the output surface.
type Options struct {
	Width          int
	Height         int
	GutterFraction float64
	Quality        int
	Caption        string
	CaptionSize    float64
}

// DefaultOptions returns the 960x540 booth frame settings.
func DefaultOptions() Options {
	return Options{
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		GutterFraction: DefaultGutterFraction,
		Quality:        DefaultQuality,
		Caption:        DefaultCaption,
		CaptionSize:    DefaultCaptionSize,
	}
}

// Frame is one encoded output image.
type Frame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DataURI returns the frame as a self-contained data URI.
func (f Frame) DataURI() string {
	return "data:" + f.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Compositor renders booth frames. It is safe for concurrent use.
type Compositor struct {
	opts Options

	faceMu sync.Mutex
	face   font.Face
}

// New creates a Compositor, loading the caption font.
func New(opts Options) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("output size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be in 1..100, got %d", opts.Quality)
	}
	if opts.CaptionSize <= 0 {
		opts.CaptionSize = DefaultCaptionSize
	}

	face, err := CaptionFace(opts.CaptionSize)
	if err != nil {
		return nil, err
	}

	return &Compositor{opts: opts, face: face}, nil
}

// Options returns the compositor's output settings.
func (c *Compositor) Options() Options {
	return c.opts
}

// Layout computes the destination geometry for a style. It is recomputed on
// every call so a change in output settings is never masked by a cache.
func (c *Compositor) Layout(s style.Spec) (geometry.Layout, error) {
	return geometry.GutterLayout(c.opts.Width, c.opts.Height, c.opts.GutterFraction, s.BorderThickness)
}

// Render composites src into a new unencoded surface:
//  1. fill with the border color
//  2. compute the gutter and photo rectangles
//  3. cover-crop the source to the photo aspect
//  4. draw the crop mirrored horizontally into the photo rectangle
//  5. draw the caption rotated in the gutter, contrast-colored
//  6. apply the vintage tint when requested
func (c *Compositor) Render(src image.Image, s style.Spec) (*image.RGBA, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, ErrEmptySource
	}

	out := image.NewRGBA(image.Rect(0, 0, c.opts.Width, c.opts.Height))
	draw.Draw(out, out.Bounds(), image.NewUniform(s.BorderColor.ToRGBA()), image.Point{}, draw.Src)

	layout, err := c.Layout(s)
	if err != nil {
		return nil, fmt.Errorf("layout for style %s: %w", s.ID, err)
	}

	sb := src.Bounds()
	crop, err := geometry.CoverCrop(float64(sb.Dx()), float64(sb.Dy()), layout.PhotoAspect())
	if err != nil {
		return nil, err
	}
	sr := crop.Rect(sb.Dx(), sb.Dy()).Add(sb.Min)
	if sr.Empty() {
		return nil, ErrEmptySource
	}

	scaled := image.NewRGBA(image.Rect(0, 0, layout.Photo.Dx(), layout.Photo.Dy()))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, sr, draw.Src, nil)
	drawMirrored(out, layout.Photo, scaled, s.CornerRadius)

	if c.opts.Caption != "" && layout.GutterW > 0 {
		c.faceMu.Lock()
		DrawVerticalText(out, c.face, c.opts.Caption, style.ContrastColor(s.BorderColor).ToRGBA(),
			image.Pt(layout.GutterW/2, c.opts.Height/2))
		c.faceMu.Unlock()
	}

	if s.Overlay == style.OverlayVintage {
		ApplyTint(out, vintageTint)
	}

	return out, nil
}

// Encode compresses a rendered surface to JPEG.
func (c *Compositor) Encode(img *image.RGBA) (Frame, error) {
	if img == nil {
		return Frame{}, fmt.Errorf("encode: nil surface")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.opts.Quality}); err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	if buf.Len() == 0 {
		return Frame{}, fmt.Errorf("jpeg encoding produced an empty frame")
	}
	b := img.Bounds()
	return Frame{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// Composite renders and encodes one frame.
func (c *Compositor) Composite(src image.Image, s style.Spec) (Frame, error) {
	img, err := c.Render(src, s)
	if err != nil {
		return Frame{}, err
	}
	return c.Encode(img)
}

// EndCard returns a flat fill in the style's border color at output size.
func (c *Compositor) EndCard(s style.Spec) (Frame, error) {
	out := image.NewRGBA(image.Rect(0, 0, c.opts.Width, c.opts.Height))
	draw.Draw(out, out.Bounds(), image.NewUniform(s.BorderColor.ToRGBA()), image.Point{}, draw.Src)

	frame, err := c.Encode(out)
	if err != nil {
		return Frame{}, fmt.Errorf("end card: %w", err)
	}

	log.Debug().
		Str("style", s.ID).
		Int("output_size", len(frame.Data)).
		Msg("End card rendered")

	return frame, nil
}

// ApplyTint blends a uniform translucent color over the whole image.
func ApplyTint(dst draw.Image, tint color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(tint), image.Point{}, draw.Over)
}

// drawMirrored copies src into rect of dst flipped left to right. Pixels
// outside the rounded corners of radius r are left untouched.
func drawMirrored(dst *image.RGBA, rect image.Rectangle, src *image.RGBA, r int) {
	w, h := rect.Dx(), rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if r > 0 && outsideCorner(x, y, w, h, r) {
				continue
			}
			si := src.PixOffset(w-1-x, y)
			di := dst.PixOffset(rect.Min.X+x, rect.Min.Y+y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
}

// outsideCorner reports whether pixel (x, y) of a w x h rectangle falls
// outside a corner arc of radius r.
func outsideCorner(x, y, w, h, r int) bool {
	if r*2 > w {
		r = w / 2
	}
	if r*2 > h {
		r = h / 2
	}

	var cx, cy int
	switch {
	case x < r && y < r:
		cx, cy = r, r
	case x >= w-r && y < r:
		cx, cy = w-r, r
	case x < r && y >= h-r:
		cx, cy = r, h-r
	case x >= w-r && y >= h-r:
		cx, cy = w-r, h-r
	default:
		return false
	}

	dx := float64(x) + 0.5 - float64(cx)
	dy := float64(y) + 0.5 - float64(cy)
	return dx*dx+dy*dy > float64(r*r)
}

// Package printsheet lays a finished flipbook out on an A4 page for
// printing: a cover cell followed by every frame in a three-column grid.
package printsheet

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/geometry"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// Page geometry in CSS pixels before scaling.
const (
	PageWidth  = 794
	PageHeight = 1123
	Padding    = 24
	Columns    = 3
	Scale      = 2

	captionSize = 5.0
	dateSize    = 4.0
	// dateInset is the gap between the date and the bottom of the gutter.
	dateInset = 16
)

var (
	cellRule      = color.RGBA{R: 0xe5, G: 0xe5, B: 0xe5, A: 0xff}
	fillerRule    = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	emptyPhoto    = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	coverMultiply = color.RGBA{R: 0x7c, G: 0x2d, B: 0x12, A: 0xff}
)

const (
	coverMultiplyAlpha = 0.10
	frameGrayscale     = 0.10
	dateOpacity        = 0.7
)

// Input is what the sheet is drawn from.
type Input struct {
	Style style.Spec
	// Frames are the encoded booth frames including the end card.
	Frames []compositor.Frame
	// Cover is an encoded cover image, or nil to leave the photo area empty.
	Cover   []byte
	Caption string
	Date    time.Time
}

// Cells returns the number of grid cells the sheet needs, filler included.
func Cells(frames int) int {
	n := frames + 1
	if r := n % Columns; r != 0 {
		n += Columns - r
	}
	return n
}

// FileName returns the download name for a sheet rendered at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("lets-take-a-moment-%d.png", t.UnixMilli())
}

// DateStamp formats t as mm/dd/yyyy.
func DateStamp(t time.Time) string {
	return t.Format("01/02/2006")
}

type sheetLayout struct {
	page  image.Rectangle
	cellW float64
	cellH float64
	pad   int
	rule  int
}

func layoutFor(cells int) sheetLayout {
	inner := float64(PageWidth-2*Padding) * Scale
	cellW := inner / Columns
	cellH := cellW * 9 / 16
	rows := cells / Columns
	height := int(math.Ceil(float64(2*Padding*Scale) + float64(rows)*cellH))
	if height < PageHeight*Scale {
		height = PageHeight * Scale
	}
	return sheetLayout{
		page:  image.Rect(0, 0, PageWidth*Scale, height),
		cellW: cellW,
		cellH: cellH,
		pad:   Padding * Scale,
		rule:  Scale,
	}
}

func (l sheetLayout) cell(i int) image.Rectangle {
	col, row := i%Columns, i/Columns
	x0 := l.pad + int(math.Round(float64(col)*l.cellW))
	y0 := l.pad + int(math.Round(float64(row)*l.cellH))
	x1 := l.pad + int(math.Round(float64(col+1)*l.cellW))
	y1 := l.pad + int(math.Round(float64(row+1)*l.cellH))
	return image.Rect(x0, y0, x1, y1)
}

// Render draws the sheet.
func Render(in Input) (*image.RGBA, error) {
	if err := in.Style.Validate(); err != nil {
		return nil, err
	}
	if in.Caption == "" {
		in.Caption = compositor.DefaultCaption
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	start := time.Now()
	cells := Cells(len(in.Frames))
	l := layoutFor(cells)
	page := image.NewRGBA(l.page)
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)

	if err := drawCover(page, l.cell(0), in); err != nil {
		return nil, err
	}
	drawDashedRules(page, l.cell(0), l.rule, cellRule)

	for i, frame := range in.Frames {
		rect := l.cell(i + 1)
		src, _, err := image.Decode(bytes.NewReader(frame.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		if err := drawCovered(page, rect, src); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		desaturate(page, rect, frameGrayscale)
		drawDashedRules(page, rect, l.rule, cellRule)
	}
	for i := len(in.Frames) + 1; i < cells; i++ {
		drawDashedRules(page, l.cell(i), l.rule, fillerRule)
	}

	log.Debug().
		Int("frame_count", len(in.Frames)).
		Int("cells", cells).
		Bool("has_cover", in.Cover != nil).
		Dur("duration", time.Since(start)).
		Msg("Print sheet rendered")

	return page, nil
}

// Encode renders the sheet as PNG.
func Encode(w io.Writer, in Input) error {
	page, err := Render(in)
	if err != nil {
		return err
	}
	if err := png.Encode(w, page); err != nil {
		return fmt.Errorf("failed to encode print sheet: %w", err)
	}
	return nil
}

// drawCover draws the cover cell: border-color fill, captioned gutter with
// the date, and the inset photo area.
func drawCover(page *image.RGBA, rect image.Rectangle, in Input) error {
	s := in.Style
	draw.Draw(page, rect, image.NewUniform(s.BorderColor.ToRGBA()), image.Point{}, draw.Src)

	w, h := float64(rect.Dx()), float64(rect.Dy())
	gutterW := int(math.Round(w * compositor.DefaultGutterFraction))
	textColor := style.ContrastColor(s.BorderColor).ToRGBA()

	captionFace, err := compositor.CaptionFace(captionSize * Scale)
	if err != nil {
		return err
	}
	compositor.DrawVerticalText(page, captionFace, in.Caption, textColor,
		image.Pt(rect.Min.X+gutterW/2, rect.Min.Y+rect.Dy()/2))

	dateFace, err := compositor.MonoFace(dateSize * Scale)
	if err != nil {
		return err
	}
	drawDate(page, dateFace, DateStamp(in.Date), textColor, rect, gutterW)

	padX := w * float64(s.BorderThickness) / compositor.DefaultWidth
	padY := h * float64(s.BorderThickness) / compositor.DefaultHeight
	photo := image.Rect(
		rect.Min.X+gutterW+int(math.Round(padX)),
		rect.Min.Y+int(math.Round(padY)),
		rect.Max.X-int(math.Round(padX)),
		rect.Max.Y-int(math.Round(padY)),
	)
	if photo.Empty() {
		return nil
	}
	draw.Draw(page, photo, image.NewUniform(emptyPhoto), image.Point{}, draw.Src)

	if in.Cover != nil {
		cover, _, err := image.Decode(bytes.NewReader(in.Cover))
		if err != nil {
			log.Warn().Err(err).Msg("Cover image could not be decoded, leaving photo area empty")
		} else if err := drawCovered(page, photo, cover); err != nil {
			return fmt.Errorf("cover: %w", err)
		}
	}
	if s.Overlay == style.OverlayVintage {
		multiply(page, photo, coverMultiply, coverMultiplyAlpha)
	}
	return nil
}

func drawDate(page *image.RGBA, face font.Face, date string, c color.RGBA, cell image.Rectangle, gutterW int) {
	faded := color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(255 * dateOpacity))}
	rotated := compositor.RotateCCW(compositor.RenderText(face, date, faded))
	rb := rotated.Bounds()
	if rb.Empty() {
		return
	}
	at := image.Pt(cell.Min.X+gutterW/2-rb.Dx()/2, cell.Max.Y-dateInset*Scale-rb.Dy())
	draw.Draw(page, rb.Add(at), rotated, image.Point{}, draw.Over)
}

// drawCovered scales src to fill rect, cropping the overflow around the
// center.
func drawCovered(dst *image.RGBA, rect image.Rectangle, src image.Image) error {
	sb := src.Bounds()
	crop, err := geometry.CoverCrop(float64(sb.Dx()), float64(sb.Dy()), float64(rect.Dx())/float64(rect.Dy()))
	if err != nil {
		return err
	}
	draw.CatmullRom.Scale(dst, rect, src, crop.Rect(sb.Dx(), sb.Dy()).Add(sb.Min), draw.Src, nil)
	return nil
}

// desaturate mixes amount of each pixel's luminance into rect.
func desaturate(img *image.RGBA, rect image.Rectangle, amount float64) {
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
			lum := 0.2126*r + 0.7152*g + 0.0722*b
			img.Pix[i] = uint8(math.Round(r + (lum-r)*amount))
			img.Pix[i+1] = uint8(math.Round(g + (lum-g)*amount))
			img.Pix[i+2] = uint8(math.Round(b + (lum-b)*amount))
		}
	}
}

// multiply blends c over rect with the multiply mode at the given alpha.
func multiply(img *image.RGBA, rect image.Rectangle, c color.RGBA, alpha float64) {
	rect = rect.Intersect(img.Bounds())
	f := [3]float64{
		1 - alpha + alpha*float64(c.R)/255,
		1 - alpha + alpha*float64(c.G)/255,
		1 - alpha + alpha*float64(c.B)/255,
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := img.PixOffset(x, y)
			for k := 0; k < 3; k++ {
				img.Pix[i+k] = uint8(math.Round(float64(img.Pix[i+k]) * f[k]))
			}
		}
	}
}

// drawDashedRules draws dashed lines along the right and bottom edges.
func drawDashedRules(img *image.RGBA, rect image.Rectangle, width int, c color.RGBA) {
	dash, gap := 3*width, 3*width
	for x := rect.Min.X; x < rect.Max.X; x += dash + gap {
		seg := image.Rect(x, rect.Max.Y-width, min(x+dash, rect.Max.X), rect.Max.Y)
		draw.Draw(img, seg, image.NewUniform(c), image.Point{}, draw.Src)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y += dash + gap {
		seg := image.Rect(rect.Max.X-width, y, rect.Max.X, min(y+dash, rect.Max.Y))
		draw.Draw(img, seg, image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// Package export packages a finished flipbook into a downloadable zip:
// frames, end card, cover, print sheet, preview and a JSON manifest.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/coverart"
	"github.com/fpang/flipbook-booth/internal/metrics"
	"github.com/fpang/flipbook-booth/internal/preview"
	"github.com/fpang/flipbook-booth/internal/printsheet"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// Compression selects how bundle entries are compressed.
type Compression string

const (
	CompressionDeflate Compression = "deflate"
	CompressionZstd    Compression = "zstd"
	CompressionStore   Compression = "store"
)

// ParseCompression accepts deflate, zstd or store. Empty means deflate.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionDeflate, nil
	case CompressionDeflate, CompressionZstd, CompressionStore:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want deflate, zstd or store)", s)
	}
}

func (c Compression) method() uint16 {
	switch c {
	case CompressionZstd:
		return zipMethodZstd
	case CompressionStore:
		return zip.Store
	default:
		return zip.Deflate
	}
}

// Entry names inside the bundle.
const (
	ManifestName = "manifest.json"
	SheetName    = "sheet.png"
	PreviewName  = "preview.gif"
	EndCardName  = "frames/endcard.jpg"
)

// FrameName returns the entry name for zero-based frame i.
func FrameName(i int) string {
	return fmt.Sprintf("frames/frame_%03d.jpg", i+1)
}

// Input is everything a bundle is built from.
type Input struct {
	Sequence *capture.FinishedSequence
	Cover    *coverart.Image
	Caption  string
}

// Manifest describes a bundle's contents.
type Manifest struct {
	SessionID   string        `json:"session_id"`
	Strategy    string        `json:"strategy"`
	Style       ManifestStyle `json:"style"`
	CapturedAt  time.Time     `json:"captured_at"`
	FrameCount  int           `json:"frame_count"`
	Frames      []string      `json:"frames"`
	EndCard     string        `json:"end_card"`
	Cover       string        `json:"cover,omitempty"`
	CoverPrompt string        `json:"cover_prompt,omitempty"`
	Sheet       string        `json:"sheet"`
	SheetName   string        `json:"sheet_download_name"`
	Preview     string        `json:"preview"`
	Compression Compression   `json:"compression"`
}

// ManifestStyle is the style a bundle was composited with.
type ManifestStyle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BorderColor  string `json:"border_color"`
	BorderWidth  int    `json:"border_width"`
	BorderRadius int    `json:"border_radius"`
	Overlay      string `json:"overlay"`
}

// Result summarizes a written bundle.
type Result struct {
	Path     string
	Size     int64
	Manifest Manifest
}

// Write streams the bundle to w.
func Write(w io.Writer, in Input, compression Compression) (*Manifest, error) {
	seq := in.Sequence
	if seq == nil || len(seq.Frames) == 0 {
		return nil, fmt.Errorf("export needs a finished sequence")
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	zw.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})

	m := Manifest{
		SessionID:   seq.SessionID,
		Strategy:    seq.Strategy,
		Style:       manifestStyle(seq),
		CapturedAt:  seq.CapturedAt.UTC(),
		FrameCount:  len(seq.Frames),
		EndCard:     EndCardName,
		Sheet:       SheetName,
		SheetName:   printsheet.FileName(seq.CapturedAt),
		Preview:     PreviewName,
		Compression: compression,
	}

	// Frames are JPEG already and go in as is.
	for i, frame := range seq.Frames {
		name := FrameName(i)
		if err := writeEntry(zw, name, zip.Store, seq.CapturedAt, frame.Data); err != nil {
			return nil, err
		}
		m.Frames = append(m.Frames, name)
	}
	if err := writeEntry(zw, EndCardName, zip.Store, seq.CapturedAt, seq.EndCard.Data); err != nil {
		return nil, err
	}

	var cover []byte
	if in.Cover != nil && len(in.Cover.Data) > 0 {
		cover = in.Cover.Data
		m.Cover = "cover" + coverExt(in.Cover.MIMEType)
		m.CoverPrompt = in.Cover.Prompt
		if err := writeEntry(zw, m.Cover, zip.Store, seq.CapturedAt, cover); err != nil {
			return nil, err
		}
	}

	var sheet bytes.Buffer
	if err := printsheet.Encode(&sheet, printsheet.Input{
		Style:   seq.Style,
		Frames:  seq.Images(),
		Cover:   cover,
		Caption: in.Caption,
		Date:    seq.CapturedAt,
	}); err != nil {
		return nil, fmt.Errorf("print sheet: %w", err)
	}
	if err := writeEntry(zw, SheetName, compression.method(), seq.CapturedAt, sheet.Bytes()); err != nil {
		return nil, err
	}

	var gif bytes.Buffer
	if err := preview.Encode(&gif, seq.Images(), preview.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	if err := writeEntry(zw, PreviewName, compression.method(), seq.CapturedAt, gif.Bytes()); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestName, compression.method(), seq.CapturedAt, manifest); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close ZIP writer: %w", err)
	}
	return &m, nil
}

// WriteFile writes the bundle to dir/<session>.zip through a temp file so a
// failed export never leaves a partial bundle behind.
func WriteFile(dir string, in Input, compression Compression) (*Result, error) {
	if in.Sequence == nil {
		return nil, fmt.Errorf("export needs a finished sequence")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".bundle-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp ZIP: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	start := time.Now()
	m, err := Write(tmpFile, in, compression)
	if err != nil {
		tmpFile.Close()
		return nil, err
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp ZIP: %w", err)
	}

	path := filepath.Join(dir, BundleName(in.Sequence.SessionID))
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("move bundle into place: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat ZIP file: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Str("session_id", m.SessionID).
		Str("path", path).
		Int64("zip_size", info.Size()).
		Str("compression", string(compression)).
		Dur("duration", elapsed).
		Msg("Bundle written")

	metrics.New(metrics.Namespace).
		Dimension("Compression", string(compression)).
		Metric("BundleBytes", float64(info.Size()), metrics.UnitBytes).
		Metric("BundleWriteMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Property("session_id", m.SessionID).
		Flush()

	return &Result{Path: path, Size: info.Size(), Manifest: *m}, nil
}

// BundleName is the file name of a session's bundle.
func BundleName(sessionID string) string {
	return sessionID + ".zip"
}

func writeEntry(zw *zip.Writer, name string, method uint16, modTime time.Time, data []byte) error {
	header := &zip.FileHeader{Name: name, Method: method}
	header.SetModTime(modTime)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create ZIP entry for %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write to ZIP for %s: %w", name, err)
	}
	return nil
}

func manifestStyle(seq *capture.FinishedSequence) ManifestStyle {
	s := seq.Style
	return ManifestStyle{
		ID:           s.ID,
		Name:         s.Name,
		BorderColor:  s.BorderColor.Hex(),
		BorderWidth:  s.BorderThickness,
		BorderRadius: s.CornerRadius,
		Overlay:      s.Overlay.String(),
	}
}

func coverExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

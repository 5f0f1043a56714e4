package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/coverart"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/klauspost/compress/zstd"
)

func testSequence(t *testing.T, n int) *capture.FinishedSequence {
	t.Helper()
	c, err := compositor.New(compositor.Options{Width: 160, Height: 90, GutterFraction: 0.15, Quality: 80, CaptionSize: 6})
	if err != nil {
		t.Fatalf("compositor.New: %v", err)
	}
	s := style.Spec{ID: "soft-gray", Name: "Stone", BorderColor: style.MustParseHex("#e4e4e7"), BorderThickness: 20}
	seq := &capture.FinishedSequence{
		SessionID:  "3f2c9a1e-session",
		Strategy:   "interval",
		Style:      s,
		CapturedAt: time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
	}
	for i := 0; i < n; i++ {
		f, err := c.Composite(image.NewRGBA(image.Rect(0, 0, 32, 18)), s)
		if err != nil {
			t.Fatalf("Composite: %v", err)
		}
		seq.Frames = append(seq.Frames, f)
	}
	seq.EndCard, err = c.EndCard(s)
	if err != nil {
		t.Fatalf("EndCard: %v", err)
	}
	return seq
}

func openZip(t *testing.T, data []byte) map[string]*zip.File {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	zr.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		d, err := zstd.NewReader(r)
		if err != nil {
			t.Fatalf("zstd.NewReader: %v", err)
		}
		return d.IOReadCloser()
	})
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return files
}

func readEntry(t *testing.T, f *zip.File) []byte {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("open %s: %v", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", f.Name, err)
	}
	return data
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{in: "", want: CompressionDeflate},
		{in: "ZSTD", want: CompressionZstd},
		{in: "store", want: CompressionStore},
		{in: "brotli", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteBundle(t *testing.T) {
	for _, compression := range []Compression{CompressionDeflate, CompressionZstd, CompressionStore} {
		t.Run(string(compression), func(t *testing.T) {
			seq := testSequence(t, 3)
			cover := &coverart.Image{Data: []byte("\x89PNG fake"), MIMEType: "image/png", Prompt: "harbor"}

			var buf bytes.Buffer
			m, err := Write(&buf, Input{Sequence: seq, Cover: cover}, compression)
			if err != nil {
				t.Fatalf("Write: %v", err)
			}

			files := openZip(t, buf.Bytes())
			for _, name := range []string{ManifestName, SheetName, PreviewName, EndCardName, "cover.png",
				"frames/frame_001.jpg", "frames/frame_002.jpg", "frames/frame_003.jpg"} {
				if _, ok := files[name]; !ok {
					t.Errorf("missing entry %s", name)
				}
			}
			if len(files) != 8 {
				t.Errorf("got %d entries, want 8", len(files))
			}
			if files[SheetName].Method != compression.method() {
				t.Errorf("sheet method: got %d, want %d", files[SheetName].Method, compression.method())
			}
			if files["frames/frame_001.jpg"].Method != zip.Store {
				t.Errorf("frames should be stored")
			}
			if !bytes.Equal(readEntry(t, files["frames/frame_002.jpg"]), seq.Frames[1].Data) {
				t.Error("frame bytes changed in the bundle")
			}

			var got Manifest
			if err := json.Unmarshal(readEntry(t, files[ManifestName]), &got); err != nil {
				t.Fatalf("manifest: %v", err)
			}
			if got.SessionID != seq.SessionID || got.FrameCount != 3 || len(got.Frames) != 3 {
				t.Errorf("manifest: got %+v", got)
			}
			if got.Style.BorderColor != "#e4e4e7" || got.Style.Overlay != "none" {
				t.Errorf("manifest style: got %+v", got.Style)
			}
			if got.Cover != "cover.png" || got.CoverPrompt != "harbor" {
				t.Errorf("manifest cover: got %q %q", got.Cover, got.CoverPrompt)
			}
			if got.SheetName != "lets-take-a-moment-1792143000000.png" {
				t.Errorf("sheet name: got %q", got.SheetName)
			}
			if m.Compression != compression {
				t.Errorf("compression: got %q", m.Compression)
			}
		})
	}
}

func TestWriteWithoutCover(t *testing.T) {
	var buf bytes.Buffer
	m, err := Write(&buf, Input{Sequence: testSequence(t, 1)}, CompressionDeflate)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.Cover != "" {
		t.Errorf("cover should be empty, got %q", m.Cover)
	}
	if _, ok := openZip(t, buf.Bytes())["cover.png"]; ok {
		t.Error("cover entry should be absent")
	}
}

func TestWriteRejectsEmptySequence(t *testing.T) {
	if _, err := Write(io.Discard, Input{}, CompressionDeflate); err == nil {
		t.Error("expected error for nil sequence")
	}
	if _, err := Write(io.Discard, Input{Sequence: &capture.FinishedSequence{}}, CompressionDeflate); err == nil {
		t.Error("expected error for a sequence without frames")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	seq := testSequence(t, 2)
	res, err := WriteFile(dir, Input{Sequence: seq}, CompressionZstd)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if res.Path != filepath.Join(dir, "3f2c9a1e-session.zip") {
		t.Errorf("path: got %s", res.Path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != res.Size {
		t.Errorf("size: got %d, want %d", res.Size, info.Size())
	}
}

type fakePutter struct {
	bucket, key, contentType, tagging string
	body                              []byte
	err                               error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket, f.key, f.contentType = *in.Bucket, *in.Key, *in.ContentType
	if in.Tagging != nil {
		f.tagging = *in.Tagging
	}
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "b.zip")
	if err := os.WriteFile(local, []byte("zipdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePutter{}
	u := NewUploader(fake, nil, "booth-bucket", "/events/2026/")
	uri, err := u.Upload(context.Background(), "abc", local)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if uri != "s3://booth-bucket/events/2026/abc.zip" {
		t.Errorf("uri: got %s", uri)
	}
	if fake.key != "events/2026/abc.zip" || fake.contentType != "application/zip" || string(fake.body) != "zipdata" {
		t.Errorf("put: got key=%s type=%s body=%q", fake.key, fake.contentType, fake.body)
	}
	if fake.tagging != projectTag {
		t.Errorf("tagging: got %q", fake.tagging)
	}

	if got := NewUploader(fake, nil, "b", "").Key("abc"); got != "abc.zip" {
		t.Errorf("key without prefix: got %s", got)
	}

	fake.err = errors.New("denied")
	if _, err := u.Upload(context.Background(), "abc", local); err == nil {
		t.Error("expected upload error")
	}
	if _, err := u.Upload(context.Background(), "abc", filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("expected open error")
	}
}

type fakePresigner struct {
	key     string
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.key = *in.Key
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://example.invalid/" + f.key}, nil
}

func TestDownloadURL(t *testing.T) {
	presign := &fakePresigner{}
	u := NewUploader(&fakePutter{}, presign, "booth-bucket", "events")
	url, err := u.DownloadURL(context.Background(), "abc", time.Hour)
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if url != "https://example.invalid/events/abc.zip" || presign.expires != time.Hour {
		t.Errorf("got url=%s expires=%s", url, presign.expires)
	}

	if _, err := NewUploader(&fakePutter{}, nil, "b", "").DownloadURL(context.Background(), "abc", time.Hour); err == nil {
		t.Error("expected error without presigner")
	}
}

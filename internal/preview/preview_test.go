package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"testing"
	"time"

	"github.com/fpang/flipbook-booth/internal/clock"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/style"
)

func testFrames(t *testing.T, n int) []compositor.Frame {
	t.Helper()
	c, err := compositor.New(compositor.Options{Width: 160, Height: 90, GutterFraction: 0.15, Quality: 80, CaptionSize: 6})
	if err != nil {
		t.Fatalf("compositor.New: %v", err)
	}
	s := style.Spec{ID: "t", BorderColor: style.MustParseHex("#ffffff"), BorderThickness: 4}
	frames := make([]compositor.Frame, 0, n)
	for i := 0; i < n; i++ {
		src := image.NewRGBA(image.Rect(0, 0, 64, 36))
		for p := range src.Pix {
			src.Pix[p] = byte(i * 40)
		}
		f, err := c.Composite(src, s)
		if err != nil {
			t.Fatalf("Composite: %v", err)
		}
		frames = append(frames, f)
	}
	end, err := c.EndCard(s)
	if err != nil {
		t.Fatalf("EndCard: %v", err)
	}
	return append(frames, end)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		i, n int
		want string
	}{
		{0, 16, "1 — 16"},
		{15, 16, "16 — 16"},
	}
	for _, tt := range tests {
		if got := Label(tt.i, tt.n); got != tt.want {
			t.Errorf("Label(%d, %d) = %q, want %q", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	frames := testFrames(t, 3)
	g, err := Render(frames, DefaultOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(g.Image) != 4 || len(g.Delay) != 4 {
		t.Fatalf("got %d images, %d delays, want 4", len(g.Image), len(g.Delay))
	}
	for i, d := range g.Delay {
		if d != 15 {
			t.Errorf("delay[%d] = %d, want 15", i, d)
		}
	}
	if b := g.Image[0].Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Errorf("bounds: got %v", b)
	}
	if g.LoopCount != 0 {
		t.Errorf("loop count: got %d, want 0 (forever)", g.LoopCount)
	}

	// The counter plate darkens the bottom-right corner of the white end card.
	last := g.Image[3]
	corner := color.RGBAModel.Convert(last.At(314, 174)).(color.RGBA)
	center := color.RGBAModel.Convert(last.At(160, 90)).(color.RGBA)
	if corner.R >= center.R {
		t.Errorf("counter plate not drawn: corner %v, center %v", corner, center)
	}
}

func TestRenderWithoutCounter(t *testing.T) {
	frames := testFrames(t, 0)
	opts := DefaultOptions()
	opts.Counter = false
	g, err := Render(frames, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	corner := color.RGBAModel.Convert(g.Image[0].At(314, 174)).(color.RGBA)
	if corner.R < 200 {
		t.Errorf("corner should stay light without a counter, got %v", corner)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render(nil, DefaultOptions()); err == nil {
		t.Error("expected error for no frames")
	}
	if _, err := Render([]compositor.Frame{{Data: []byte("nope")}}, DefaultOptions()); err == nil {
		t.Error("expected decode error")
	}
	if _, err := Render(testFrames(t, 1), Options{Width: 0, Height: 10}); err == nil {
		t.Error("expected size error")
	}
}

func TestEncodeDecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, testFrames(t, 2), DefaultOptions()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(g.Image) != 3 {
		t.Errorf("decoded %d frames, want 3", len(g.Image))
	}
}

func TestLoopWraps(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	shown := make(chan int, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, fake, 3, DefaultDelay, func(i int) { shown <- i })
	}()

	var got []int
	got = append(got, <-shown)
	fake.BlockUntil(1)
	for i := 0; i < 4; i++ {
		fake.Advance(DefaultDelay)
		got = append(got, <-shown)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Loop returned %v, want context.Canceled", err)
	}

	want := []int{0, 1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices: got %v, want %v", got, want)
		}
	}
	if fake.Pending() != 0 {
		t.Errorf("ticker should be stopped, %d pending", fake.Pending())
	}
}

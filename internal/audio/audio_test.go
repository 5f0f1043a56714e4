package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/wav"
)

func TestRenderLengths(t *testing.T) {
	tests := []struct {
		cue     Cue
		samples int
		peak    float64
	}{
		{cue: CueClick, samples: 2205, peak: 0.05},
		{cue: CueTick, samples: 4410, peak: 0.1},
		{cue: CueShutter, samples: 4410, peak: 0.3},
	}

	for _, tt := range tests {
		t.Run(string(tt.cue), func(t *testing.T) {
			samples, err := Render(tt.cue)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if len(samples) != tt.samples {
				t.Errorf("samples: got %d, want %d", len(samples), tt.samples)
			}
			maxAbs := 0.0
			for _, s := range samples {
				maxAbs = math.Max(maxAbs, math.Abs(s))
			}
			if maxAbs == 0 || maxAbs > tt.peak+1e-9 {
				t.Errorf("peak: got %v, want (0, %v]", maxAbs, tt.peak)
			}
			// Envelopes decay: the tail is much quieter than the head.
			head := math.Abs(samples[len(samples)/20])
			tail := math.Abs(samples[len(samples)-1])
			if tail > 0.01 {
				t.Errorf("tail should have decayed, got %v (head %v)", tail, head)
			}
		})
	}

	if _, err := Render("whistle"); err == nil {
		t.Error("expected error for unknown cue")
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	samples, err := Render(CueTick)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tick.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, samples); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		t.Fatal("invalid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if decoder.SampleRate != SampleRate || decoder.BitDepth != 16 || decoder.NumChans != 1 {
		t.Errorf("format: got %d Hz %d bit %d ch", decoder.SampleRate, decoder.BitDepth, decoder.NumChans)
	}
	if len(buf.Data) != len(samples) {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
}

type recordingPlayer struct {
	mu    sync.Mutex
	paths []string
}

func (p *recordingPlayer) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return nil
}

func TestCuesLazyInitAndClose(t *testing.T) {
	player := &recordingPlayer{}
	c := NewCues(player)
	if c.dir != "" {
		t.Fatal("tone bank should not be rendered before first use")
	}

	c.Tick()
	c.Shutter()
	c.Click()

	dir := c.dir
	if dir == "" {
		t.Fatal("tone bank should be rendered after first use")
	}
	for _, name := range []string{"click.wav", "tick.wav", "shutter.wav"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	player.mu.Lock()
	played := len(player.paths)
	player.mu.Unlock()
	if played != 3 {
		t.Errorf("played %d cues, want 3", played)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("cue directory should be removed, stat err %v", err)
	}

	c.Tick() // ignored after Close
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSilentCues(t *testing.T) {
	var nilCues *Cues
	nilCues.Tick()
	if err := nilCues.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}

	c := NewCues(nil)
	c.Shutter()
	if c.dir != "" {
		t.Error("a handle without a player should never render")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

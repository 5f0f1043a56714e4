// Package audio synthesizes the booth's feedback sounds and plays them
// through an external player.
package audio

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the rate every cue is rendered at.
const SampleRate = 44100

const bitDepth = 16

// Cue names a feedback sound.
type Cue string

const (
	CueClick   Cue = "click"
	CueTick    Cue = "tick"
	CueShutter Cue = "shutter"
)

// floor is the level exponential envelopes decay to.
const floor = 0.001

// Render returns the samples for a cue in [-1, 1].
func Render(c Cue) ([]float64, error) {
	switch c {
	case CueClick:
		// Sine sweep 600 -> 300 Hz over 50ms.
		return sweep(math.Sin, 600, 300, 0.05, 0.05, 0.05), nil
	case CueTick:
		// 800 Hz sine, 100ms, exponential decay.
		return sweep(math.Sin, 800, 800, 0.1, 0.1, 0.1), nil
	case CueShutter:
		// Square-wave clunk 150 -> 40 Hz plus a low-passed noise burst.
		clunk := sweep(square, 150, 40, 0.1, 0.1, 0.1)
		noise := noiseBurst(0.1, 1200, 0.2, 0.08)
		return mix(clunk, noise), nil
	default:
		return nil, fmt.Errorf("unknown cue %q", c)
	}
}

// sweep renders an oscillator whose frequency ramps exponentially from f0 to
// f1 over seconds, with gain decaying from gain to floor over decay seconds.
func sweep(osc func(float64) float64, f0, f1, seconds, gain, decay float64) []float64 {
	n := int(seconds * SampleRate)
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / SampleRate
		freq := f0 * math.Pow(f1/f0, t/seconds)
		phase += 2 * math.Pi * freq / SampleRate
		out[i] = osc(phase) * envelope(gain, t, decay)
	}
	return out
}

func envelope(gain, t, decay float64) float64 {
	if t >= decay {
		return floor
	}
	return gain * math.Pow(floor/gain, t/decay)
}

func square(phase float64) float64 {
	if math.Sin(phase) >= 0 {
		return 1
	}
	return -1
}

// noiseBurst renders white noise through a one-pole lowpass at cutoff Hz.
// The seed is fixed so cues are reproducible.
func noiseBurst(seconds, cutoff, gain, decay float64) []float64 {
	n := int(seconds * SampleRate)
	out := make([]float64, n)
	rng := rand.New(rand.NewSource(1))
	alpha := 1 - math.Exp(-2*math.Pi*cutoff/SampleRate)
	y := 0.0
	for i := range out {
		x := rng.Float64()*2 - 1
		y += alpha * (x - y)
		out[i] = y * envelope(gain, float64(i)/SampleRate, decay)
	}
	return out
}

func mix(a, b []float64) []float64 {
	if len(b) > len(a) {
		a, b = b, a
	}
	out := make([]float64, len(a))
	copy(out, a)
	for i, v := range b {
		out[i] += v
	}
	for i, v := range out {
		out[i] = math.Max(-1, math.Min(1, v))
	}
	return out
}

// WriteWAV encodes mono samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float64) error {
	maxVal := float64(goaudio.IntMaxSignedValue(bitDepth))
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(s * maxVal))
	}

	enc := wav.NewEncoder(w, SampleRate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

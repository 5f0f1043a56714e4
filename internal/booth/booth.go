// Package booth is the screen controller that walks a guest through the
// booth: landing, style selection, capture, preview with optional cover art,
// and the print sheet. It owns the session hand-off between capture and the
// preview, print and export renderers.
package booth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/coverart"
	"github.com/fpang/flipbook-booth/internal/export"
	"github.com/fpang/flipbook-booth/internal/preview"
	"github.com/fpang/flipbook-booth/internal/printsheet"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/rs/zerolog/log"
)

var (
	// ErrWrongStep is returned when an action is not available on the
	// current screen.
	ErrWrongStep = errors.New("action not available on this screen")
	// ErrNoCover is returned by UseCover when nothing has been generated.
	ErrNoCover = errors.New("no generated cover to use")
)

// Clicker plays the UI click. audio.Cues satisfies it.
type Clicker interface {
	Click()
}

// Observer receives controller events. Any field may be nil. Countdown and
// progress events come from the capture goroutine.
type Observer struct {
	OnStep          func(Step)
	OnCountdown     func(remaining int)
	OnProgress      func(capture.Progress)
	OnCaptureFailed func(*capture.Error)
}

// Options wires a Controller to its collaborators.
type Options struct {
	Catalog  *style.Catalog
	Manager  *capture.Manager
	Covers   *coverart.Generator
	Cues     Clicker
	Caption  string
	Observer Observer
}

// Controller tracks the current screen and the guest's flipbook.
type Controller struct {
	catalog  *style.Catalog
	manager  *capture.Manager
	covers   *coverart.Generator
	cues     Clicker
	caption  string
	observer Observer

	mu        sync.Mutex
	step      Step
	style     style.Spec
	sequence  *capture.FinishedSequence
	cover     *coverart.Image
	candidate *coverart.Image
	lastErr   *capture.Error
	capturing bool
	// gen identifies the current capture so hooks from a superseded
	// session are ignored.
	gen int
}

// New returns a Controller on the landing screen with the catalog's first
// style selected.
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("booth requires a style catalog")
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("booth requires a capture manager")
	}
	return &Controller{
		catalog:  opts.Catalog,
		manager:  opts.Manager,
		covers:   opts.Covers,
		cues:     opts.Cues,
		caption:  opts.Caption,
		observer: opts.Observer,
		step:     Landing,
		style:    opts.Catalog.Default(),
	}, nil
}

// Step returns the current screen.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Style returns the selected frame style.
func (c *Controller) Style() style.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// Sequence returns the captured flipbook, or nil before capture completes.
func (c *Controller) Sequence() *capture.FinishedSequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// Cover returns the accepted cover, or nil.
func (c *Controller) Cover() *coverart.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cover
}

// LastError returns the most recent capture failure, cleared by the next
// capture attempt.
func (c *Controller) LastError() *capture.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start leaves the landing screen for style selection.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.step != Landing {
		defer c.mu.Unlock()
		return c.wrongStep("start")
	}
	c.step = Setup
	c.mu.Unlock()

	c.click()
	c.stepChanged(Setup)
	return nil
}

// SelectStyle picks a frame style and moves to the capture screen.
func (c *Controller) SelectStyle(id string) error {
	s, err := c.catalog.Lookup(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.step != Setup {
		defer c.mu.Unlock()
		return c.wrongStep("select a style")
	}
	c.style = s
	c.step = Capture
	c.mu.Unlock()

	c.click()
	c.stepChanged(Capture)
	return nil
}

// BeginCapture starts a capture session with the selected style. The
// returned channel receives exactly one value once the controller has
// applied the outcome: nil on completion (the screen is then Preview), or
// the session error. A failed session returns the guest to Setup; a
// canceled one stays on Capture.
func (c *Controller) BeginCapture(ctx context.Context) (<-chan error, error) {
	c.mu.Lock()
	if c.step != Capture {
		defer c.mu.Unlock()
		return nil, c.wrongStep("begin capture")
	}
	c.gen++
	gen := c.gen
	s := c.style
	c.lastErr = nil
	c.capturing = true
	c.mu.Unlock()

	result := make(chan error, 1)
	var failure *capture.Error

	hooks := capture.Hooks{
		OnCountdown: func(remaining int) {
			if c.current(gen) && c.observer.OnCountdown != nil {
				c.observer.OnCountdown(remaining)
			}
		},
		OnProgress: func(p capture.Progress) {
			if c.current(gen) && c.observer.OnProgress != nil {
				c.observer.OnProgress(p)
			}
		},
		OnComplete: func(seq *capture.FinishedSequence) {
			c.captured(gen, seq)
			result <- nil
		},
		OnFailed: func(e *capture.Error) {
			failure = e
		},
		OnPhase: func(p capture.Phase) {
			if p != capture.Failed {
				return
			}
			if failure == nil {
				failure = &capture.Error{Kind: capture.Canceled, Message: "Capture canceled"}
			}
			c.captureFailed(gen, failure)
			result <- failure
		},
	}

	if _, err := c.manager.Start(ctx, s, hooks); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.capturing = false
		}
		c.mu.Unlock()
		return nil, err
	}
	return result, nil
}

// Back returns to the previous screen. Leaving the capture screen stops
// any running session; leaving the preview discards the captured frames.
func (c *Controller) Back() error {
	c.mu.Lock()
	prev, ok := c.step.Previous()
	if !ok {
		defer c.mu.Unlock()
		return c.wrongStep("go back")
	}
	from := c.step
	stopCapture := from == Capture && c.capturing
	if stopCapture {
		c.gen++
		c.capturing = false
	}
	if from == Preview {
		c.discardLocked()
	}
	c.step = prev
	c.mu.Unlock()

	if stopCapture {
		c.manager.Stop()
	}
	c.click()
	c.stepChanged(prev)
	return nil
}

// Retake discards the captured frames and any cover and returns to the
// capture screen.
func (c *Controller) Retake() error {
	c.mu.Lock()
	if c.step != Preview {
		defer c.mu.Unlock()
		return c.wrongStep("retake")
	}
	c.discardLocked()
	c.step = Capture
	c.mu.Unlock()

	c.click()
	c.stepChanged(Capture)
	return nil
}

// GenerateCover asks the cover generator for art. The result is held as a
// candidate until UseCover or DiscardCover. Errors are returned for display
// and never affect the captured flipbook.
func (c *Controller) GenerateCover(ctx context.Context, prompt string) (*coverart.Image, error) {
	c.mu.Lock()
	if c.step != Preview {
		defer c.mu.Unlock()
		return nil, c.wrongStep("generate a cover")
	}
	c.mu.Unlock()

	img, err := c.covers.Generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Cover generation failed")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != Preview {
		return nil, c.wrongStep("keep a cover")
	}
	c.candidate = img
	return img, nil
}

// PlayPreview loops over the captured frames and the end card on the preview
// screen, calling show with each zero-based index and the total, until ctx
// is done. Cancellation ends playback without an error.
func (c *Controller) PlayPreview(ctx context.Context, show func(i, n int)) error {
	c.mu.Lock()
	if c.step != Preview {
		defer c.mu.Unlock()
		return c.wrongStep("play the preview")
	}
	n := c.sequence.Len()
	c.mu.Unlock()

	err := preview.Loop(ctx, nil, n, preview.DefaultDelay, func(i int) { show(i, n) })
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// DiscardCover drops the generated candidate.
func (c *Controller) DiscardCover() {
	c.mu.Lock()
	c.candidate = nil
	c.mu.Unlock()
}

// UseCover accepts the generated candidate and moves to the print screen.
func (c *Controller) UseCover() error {
	c.mu.Lock()
	if c.step != Preview {
		defer c.mu.Unlock()
		return c.wrongStep("use a cover")
	}
	if c.candidate == nil {
		c.mu.Unlock()
		return ErrNoCover
	}
	c.cover = c.candidate
	c.candidate = nil
	c.step = Print
	c.mu.Unlock()

	c.click()
	c.stepChanged(Print)
	return nil
}

// SkipCover moves to the print screen with a blank cover.
func (c *Controller) SkipCover() error {
	c.mu.Lock()
	if c.step != Preview {
		defer c.mu.Unlock()
		return c.wrongStep("skip the cover")
	}
	c.cover = nil
	c.candidate = nil
	c.step = Print
	c.mu.Unlock()

	c.click()
	c.stepChanged(Print)
	return nil
}

// SheetInput returns what the print sheet is rendered from.
func (c *Controller) SheetInput() (printsheet.Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != Print {
		return printsheet.Input{}, c.wrongStep("print")
	}
	in := printsheet.Input{
		Style:   c.style,
		Frames:  c.sequence.Images(),
		Caption: c.caption,
		Date:    c.sequence.CapturedAt,
	}
	if c.cover != nil {
		in.Cover = c.cover.Data
	}
	return in, nil
}

// ExportInput returns what the download bundle is written from.
func (c *Controller) ExportInput() (export.Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != Print {
		return export.Input{}, c.wrongStep("export")
	}
	return export.Input{Sequence: c.sequence, Cover: c.cover, Caption: c.caption}, nil
}

// Close stops any running capture.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.capturing = false
	c.mu.Unlock()
	c.manager.Stop()
}

func (c *Controller) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) captured(gen int, seq *capture.FinishedSequence) {
	c.mu.Lock()
	if c.gen != gen || c.step != Capture {
		c.mu.Unlock()
		log.Debug().Str("session_id", seq.SessionID).Msg("Dropping result from superseded capture")
		return
	}
	c.capturing = false
	c.sequence = seq
	c.step = Preview
	c.mu.Unlock()

	log.Info().
		Str("session_id", seq.SessionID).
		Int("images", seq.Len()).
		Msg("Flipbook captured")
	c.stepChanged(Preview)
}

func (c *Controller) captureFailed(gen int, e *capture.Error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	if e.Kind == capture.Canceled {
		c.mu.Unlock()
		return
	}
	c.lastErr = e
	moved := c.step == Capture
	if moved {
		c.step = Setup
	}
	c.mu.Unlock()

	if c.observer.OnCaptureFailed != nil {
		c.observer.OnCaptureFailed(e)
	}
	if moved {
		c.stepChanged(Setup)
	}
}

// discardLocked drops the captured flipbook and any cover.
func (c *Controller) discardLocked() {
	c.sequence = nil
	c.cover = nil
	c.candidate = nil
}

func (c *Controller) wrongStep(action string) error {
	return fmt.Errorf("%w: cannot %s on %s", ErrWrongStep, action, c.step)
}

func (c *Controller) click() {
	if c.cues != nil {
		c.cues.Click()
	}
}

func (c *Controller) stepChanged(s Step) {
	log.Debug().Str("step", s.String()).Msg("Screen changed")
	if c.observer.OnStep != nil {
		c.observer.OnStep(s)
	}
}

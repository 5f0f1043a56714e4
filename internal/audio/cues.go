package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Player plays a WAV file and returns when playback ends.
type Player interface {
	Play(ctx context.Context, path string) error
}

// ExecPlayer plays files through a command-line player.
type ExecPlayer struct {
	Path string
	Args []string
}

// Play runs the player with the file appended to its arguments.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.Args...), path)
	cmd := exec.CommandContext(ctx, p.Path, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(p.Path), err, string(output))
	}
	return nil
}

// playerArgs are the quiet, non-interactive flags for each known player.
var playerArgs = map[string][]string{
	"ffplay": {"-nodisp", "-autoexit", "-loglevel", "quiet"},
	"aplay":  {"-q"},
	"afplay": nil,
	"paplay": nil,
}

// FindPlayer resolves name, or the first known player in PATH when name is
// empty. It returns nil when none is available.
func FindPlayer(name string) Player {
	candidates := []string{name}
	if name == "" {
		candidates = []string{"ffplay", "aplay", "paplay"}
		if runtime.GOOS == "darwin" {
			candidates = []string{"afplay", "ffplay"}
		}
	}
	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		log.Debug().Str("player", path).Msg("Audio player found")
		return &ExecPlayer{Path: path, Args: playerArgs[filepath.Base(c)]}
	}
	return nil
}

// Cues is the feedback sound handle. The tone bank is rendered on first use
// and removed by Close. A nil *Cues and a Cues without a player are silent.
type Cues struct {
	player Player

	initOnce sync.Once
	initErr  error
	dir      string
	files    map[Cue]string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewCues returns a handle that plays through p. Nothing is rendered until
// the first cue plays.
func NewCues(p Player) *Cues {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cues{player: p, ctx: ctx, cancel: cancel}
}

// Click plays the UI click.
func (c *Cues) Click() { c.Play(CueClick) }

// Tick plays a countdown tick.
func (c *Cues) Tick() { c.Play(CueTick) }

// Shutter plays the camera shutter.
func (c *Cues) Shutter() { c.Play(CueShutter) }

// Play starts a cue in the background. Playback failures are logged, never
// returned, so a missing sound never interrupts a capture.
func (c *Cues) Play(cue Cue) {
	if c == nil || c.player == nil {
		return
	}
	c.initOnce.Do(c.init)
	if c.initErr != nil {
		return
	}
	path, ok := c.files[cue]
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	ctx := c.ctx
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := c.player.Play(ctx, path); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("cue", string(cue)).Msg("Cue playback failed")
		}
	}()
}

func (c *Cues) init() {
	dir, err := os.MkdirTemp("", "flipbook-cues-*")
	if err != nil {
		c.initErr = fmt.Errorf("failed to create cue directory: %w", err)
		log.Warn().Err(c.initErr).Msg("Audio cues disabled")
		return
	}
	c.dir = dir
	c.files = make(map[Cue]string, 3)

	for _, cue := range []Cue{CueClick, CueTick, CueShutter} {
		path := filepath.Join(dir, string(cue)+".wav")
		if err := renderFile(cue, path); err != nil {
			c.initErr = err
			log.Warn().Err(err).Msg("Audio cues disabled")
			return
		}
		c.files[cue] = path
	}
	log.Debug().Str("dir", dir).Msg("Audio cues rendered")
}

func renderFile(cue Cue, path string) error {
	samples, err := Render(cue)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := WriteWAV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close stops playing cues, waits for players to exit and removes the
// rendered files. Cues played after Close are ignored.
func (c *Cues) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	// Keep a concurrent first Play from rendering into a removed directory.
	c.initOnce.Do(func() {})
	if c.dir == "" {
		return nil
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove cue directory: %w", err)
	}
	return nil
}

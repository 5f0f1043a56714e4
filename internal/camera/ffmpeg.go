package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// firstFrameTimeout bounds how long Acquire waits for the device to open.
const firstFrameTimeout = 10 * time.Second

// FFmpegConfig locates ffmpeg and the capture device.
type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	// InputFormat is the ffmpeg demuxer: v4l2 on Linux, avfoundation on macOS.
	InputFormat string
	Device      string
	FrameRate   int
	// LockDir holds the per-device lock file. Empty disables locking.
	LockDir string
}

// DefaultFFmpegConfig returns the platform's usual webcam settings.
func DefaultFFmpegConfig() FFmpegConfig {
	cfg := FFmpegConfig{FrameRate: 30, LockDir: os.TempDir()}
	switch runtime.GOOS {
	case "darwin":
		cfg.InputFormat = "avfoundation"
		cfg.Device = "0"
	default:
		cfg.InputFormat = "v4l2"
		cfg.Device = "/dev/video0"
	}
	return cfg
}

// FFmpeg is a Provider that reads a webcam through ffmpeg as an MJPEG pipe.
type FFmpeg struct {
	cfg FFmpegConfig
}

// NewFFmpeg returns an FFmpeg provider.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &FFmpeg{cfg: cfg}
}

// Acquire opens the device and waits for the first frame.
func (p *FFmpeg) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	ffmpegPath := p.cfg.FFmpegPath
	if ffmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg not found: webcam capture requires ffmpeg", ErrNoDevice)
		}
		ffmpegPath = path
	}

	if err := checkDevice(p.cfg.InputFormat, p.cfg.Device); err != nil {
		return nil, err
	}

	var lock *flock.Flock
	if p.cfg.LockDir != "" {
		lock = flock.New(filepath.Join(p.cfg.LockDir, lockName(p.cfg.Device)))
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock camera %s: %w", p.cfg.Device, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBusy, p.cfg.Device)
		}
	}

	log.Debug().
		Str("device", p.cfg.Device).
		Str("input_format", p.cfg.InputFormat).
		Str("facing_mode", c.FacingMode).
		Int("width", c.Width).
		Int("height", c.Height).
		Msg("Opening camera")

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, ffmpegPath, captureArgs(p.cfg, c)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		unlock(lock)
		return nil, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	s := &ffmpegStream{
		ffmpegPath:  ffmpegPath,
		ffprobePath: p.cfg.FFprobePath,
		device:      p.cfg.Device,
		cancel:      cancel,
		lock:        lock,
		first:       make(chan struct{}),
		done:        make(chan struct{}),
		sinks:       make(map[*recordSink]struct{}),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		unlock(lock)
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	go s.run(cmd, stdout)

	wait := time.NewTimer(firstFrameTimeout)
	defer wait.Stop()
	select {
	case <-s.first:
		log.Info().Str("device", p.cfg.Device).Msg("Camera ready")
		return s, nil
	case <-s.done:
		err := classifyFFmpegFailure(s.stderr.String())
		_ = s.Release()
		return nil, err
	case <-wait.C:
		_ = s.Release()
		return nil, fmt.Errorf("%w: %s produced no frame within %v", ErrNoDevice, p.cfg.Device, firstFrameTimeout)
	case <-ctx.Done():
		_ = s.Release()
		return nil, ctx.Err()
	}
}

func captureArgs(cfg FFmpegConfig, c Constraints) []string {
	args := []string{"-nostdin", "-loglevel", "error", "-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FrameRate)}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	return append(args,
		"-i", cfg.Device,
		"-an",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// checkDevice maps an unopenable device node to the session startup errors.
func checkDevice(inputFormat, device string) error {
	if inputFormat != "v4l2" {
		return nil
	}
	f, err := os.Open(device)
	switch {
	case err == nil:
		return f.Close()
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrNoDevice, device)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, device)
	default:
		return fmt.Errorf("failed to open camera %s: %w", device, err)
	}
}

func classifyFFmpegFailure(stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "not authorized"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("%w: %s", ErrBusy, msg)
	default:
		return fmt.Errorf("%w: ffmpeg exited: %s", ErrNoDevice, msg)
	}
}

func lockName(device string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return "flipbook-camera" + r.Replace(device) + ".lock"
}

func unlock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		log.Warn().Err(err).Str("path", lock.Path()).Msg("Failed to release camera lock")
	}
}

type ffmpegStream struct {
	ffmpegPath  string
	ffprobePath string
	device      string
	cancel      context.CancelFunc
	lock        *flock.Flock
	stderr      bytes.Buffer

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	latest   []byte
	sinks    map[*recordSink]struct{}
	released bool
}

// run splits ffmpeg's MJPEG output into frames until the process exits.
func (s *ffmpegStream) run(cmd *exec.Cmd, stdout io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	scanner.Split(scanJPEG)
	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		s.latest = frame
		sinks := make([]*recordSink, 0, len(s.sinks))
		for sink := range s.sinks {
			sinks = append(sinks, sink)
		}
		s.mu.Unlock()

		s.firstOnce.Do(func() { close(s.first) })
		for _, sink := range sinks {
			sink.write(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Str("device", s.device).Msg("Camera pipe closed")
	}
	if err := cmd.Wait(); err != nil {
		log.Debug().Err(err).Str("device", s.device).Msg("ffmpeg capture exited")
	}
}

func (s *ffmpegStream) Frame() (image.Image, error) {
	s.mu.Lock()
	released := s.released
	data := s.latest
	s.mu.Unlock()

	if released {
		return nil, ErrReleased
	}
	if data == nil {
		return nil, ErrNotReady
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return img, nil
}

// Release stops ffmpeg, waits for the reader to exit and drops the lock.
func (s *ffmpegStream) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()

	for sink := range sinks {
		sink.close()
	}
	s.cancel()
	<-s.done
	unlock(s.lock)

	log.Info().Str("device", s.device).Msg("Camera released")
	return nil
}

// Record pipes the live MJPEG frames into a second ffmpeg that stamps them
// with wall-clock time, then measures the result with ffprobe.
func (s *ffmpegStream) Record(ctx context.Context, d time.Duration) (Clip, error) {
	tmpFile, err := os.CreateTemp("", "flipbook-clip-*.mkv")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	clipPath := tmpFile.Name()
	tmpFile.Close()

	cleanup := func() {
		if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", clipPath).Msg("Failed to remove clip")
		}
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-loglevel", "error",
		"-f", "image2pipe",
		"-use_wallclock_as_timestamps", "1",
		"-c:v", "mjpeg",
		"-i", "-",
		"-c:v", "copy",
		"-y", clipPath,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to open recorder input: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	sink := &recordSink{w: stdin}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		sink.close()
		_ = cmd.Wait()
		cleanup()
		return nil, ErrReleased
	}
	s.sinks[sink] = struct{}{}
	s.mu.Unlock()

	log.Info().Dur("duration", d).Str("clip", clipPath).Msg("Recording started")

	timer := time.NewTimer(d)
	var stopErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		stopErr = ctx.Err()
	case <-s.done:
		stopErr = ErrReleased
	}
	timer.Stop()

	s.mu.Lock()
	delete(s.sinks, sink)
	s.mu.Unlock()
	sink.close()
	waitErr := cmd.Wait()

	if stopErr != nil {
		cleanup()
		return nil, stopErr
	}
	if sink.err != nil {
		cleanup()
		return nil, fmt.Errorf("recorder input failed: %w", sink.err)
	}
	if waitErr != nil {
		cleanup()
		return nil, fmt.Errorf("recorder failed: %w: %s", waitErr, stderr.String())
	}

	info, err := ProbeClip(ctx, s.ffprobePath, clipPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	log.Info().
		Dur("requested", d).
		Dur("measured", info.Duration).
		Msg("Recording complete")

	return &ffmpegClip{ffmpegPath: s.ffmpegPath, path: clipPath, info: info}, nil
}

type recordSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
	err    error
}

func (r *recordSink) write(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.err != nil {
		return
	}
	if _, err := r.w.Write(frame); err != nil {
		r.err = err
	}
}

func (r *recordSink) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if err := r.w.Close(); err != nil && r.err == nil && !errors.Is(err, os.ErrClosed) {
		r.err = err
	}
}

type ffmpegClip struct {
	ffmpegPath string
	path       string
	info       *ClipInfo
}

func (c *ffmpegClip) Duration() time.Duration { return c.info.Duration }

// FrameAt decodes the frame at offset t as PNG.
func (c *ffmpegClip) FrameAt(ctx context.Context, t time.Duration) (image.Image, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(t.Seconds(), 'f', 3, 64),
		"-i", c.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction at %v failed: %w: %s", t, err, stderr.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no frame at %v in %s", t, filepath.Base(c.path))
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted frame: %w", err)
	}
	return img, nil
}

func (c *ffmpegClip) Close() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove clip: %w", err)
	}
	return nil
}

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// scanJPEG is a bufio.SplitFunc yielding one JPEG per token. Bytes before a
// start-of-image marker are discarded.
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// Keep a trailing 0xff in case it begins the next marker.
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

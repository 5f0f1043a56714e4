package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fpang/flipbook-booth/internal/booth"
	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/export"
	"github.com/fpang/flipbook-booth/internal/preview"
	"github.com/fpang/flipbook-booth/internal/printsheet"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type captureOptions struct {
	style    string
	strategy string
	camera   string
	prompt   string
	frames   int
	noAudio  bool
	upload   bool
	preview  bool
}

func newCaptureCommand() *cobra.Command {
	var opts captureOptions
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run one booth session and write the print sheet and bundle",
		Long: `Capture runs a full booth session: countdown, frame capture, compositing,
optional cover generation, then writes the A4 print sheet and a download
bundle (frames, end card, cover, sheet, animated preview and manifest) to the
export directory. Press Ctrl+C to cancel; the camera is released immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.style, "style", "s", "", "Frame style id (see 'flipbook styles')")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Acquisition strategy: interval, deferred or record")
	cmd.Flags().StringVar(&opts.camera, "camera", "", "Camera provider: ffmpeg or synthetic")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Cover art subject (empty for a blank cover)")
	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, "Number of frames to capture")
	cmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "Disable feedback sounds")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Upload the bundle to the configured S3 bucket")
	cmd.Flags().BoolVar(&opts.preview, "preview", false, "Play the flipbook once in the terminal before choosing a cover")
	return cmd
}

func runCapture(cmd *cobra.Command, opts captureOptions) error {
	e, err := loadEnv("flipbook capture")
	if err != nil {
		return err
	}
	defer e.Close()

	cfg := e.cfg
	if opts.strategy != "" {
		cfg.Capture.Strategy = opts.strategy
	}
	if opts.frames > 0 {
		cfg.Capture.Frames = opts.frames
	}
	if opts.camera != "" {
		cfg.Camera.Provider = opts.camera
	}
	if opts.noAudio {
		cfg.Audio.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.upload && cfg.Export.S3Bucket == "" {
		return errors.New("--upload needs export.s3_bucket or FLIPBOOK_S3_BUCKET")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cues := e.cues()
	covers, err := e.covers(ctx)
	if err != nil {
		return err
	}
	manager, err := e.manager(cues)
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	e.logStartup(covers, cues)

	styleID := opts.style
	if styleID == "" {
		styleID = cfg.Capture.DefaultStyle
	}
	if styleID == "" {
		styleID = catalog.Default().ID
	}

	out := cmd.OutOrStdout()
	bopts := booth.Options{
		Catalog:  catalog,
		Manager:  manager,
		Covers:   covers,
		Caption:  cfg.Capture.Caption,
		Observer: consoleObserver(out),
	}
	if cues != nil {
		bopts.Cues = cues
	}
	ctrl, err := booth.New(bopts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Start(); err != nil {
		return err
	}
	if err := ctrl.SelectStyle(styleID); err != nil {
		return err
	}

	done, err := ctrl.BeginCapture(ctx)
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		if capture.IsCanceled(err) {
			fmt.Fprintln(out, "\nSession canceled.")
			return nil
		}
		return err
	}

	seq := ctrl.Sequence()
	fmt.Fprintf(out, "\nCaptured %d frames (+ end card) with the %s strategy.\n", len(seq.Frames), seq.Strategy)

	if opts.preview {
		if err := playOnce(ctx, out, ctrl, seq.Len()); err != nil {
			return err
		}
	}
	if err := chooseCover(ctx, out, ctrl, opts.prompt); err != nil {
		return err
	}

	sheetPath, err := writeSheet(ctrl, cfg.Export.Dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Print sheet: %s\n", sheetPath)

	compression, err := export.ParseCompression(cfg.Export.Compression)
	if err != nil {
		return err
	}
	in, err := ctrl.ExportInput()
	if err != nil {
		return err
	}
	result, err := export.WriteFile(cfg.Export.Dir, in, compression)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bundle: %s (%d bytes)\n", result.Path, result.Size)

	if opts.upload {
		uploader, err := export.NewS3Uploader(ctx, cfg.Export.S3Bucket, cfg.Export.S3Prefix)
		if err != nil {
			return err
		}
		uri, err := uploader.Upload(ctx, seq.SessionID, result.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded: %s\n", uri)
		link, err := uploader.DownloadURL(ctx, seq.SessionID, export.DefaultLinkExpiry)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to presign download link")
			return nil
		}
		fmt.Fprintf(out, "Download link (valid %s): %s\n", export.DefaultLinkExpiry, link)
	}
	return nil
}

// chooseCover generates a cover for prompt, falling back to a blank cover
// when the prompt is empty or generation fails.
// playOnce steps through the flipbook counter for a single pass.
func playOnce(ctx context.Context, out io.Writer, ctrl *booth.Controller, n int) error {
	pctx, cancel := context.WithTimeout(ctx, time.Duration(n)*preview.DefaultDelay)
	defer cancel()
	err := ctrl.PlayPreview(pctx, func(i, n int) {
		fmt.Fprintf(out, "\rFlipbook %s", preview.Label(i, n))
	})
	fmt.Fprintln(out)
	return err
}

func chooseCover(ctx context.Context, out io.Writer, ctrl *booth.Controller, prompt string) error {
	if prompt == "" {
		return ctrl.SkipCover()
	}
	fmt.Fprintln(out, "Generating cover art...")
	if _, err := ctrl.GenerateCover(ctx, prompt); err != nil {
		fmt.Fprintln(out, "Generation failed. Using a blank cover.")
		return ctrl.SkipCover()
	}
	return ctrl.UseCover()
}

func writeSheet(ctrl *booth.Controller, dir string) (string, error) {
	in, err := ctrl.SheetInput()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, printsheet.FileName(in.Date))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create print sheet: %w", err)
	}
	if err := printsheet.Encode(f, in); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close print sheet: %w", err)
	}
	log.Info().Str("path", path).Msg("Print sheet written")
	return path, nil
}

// consoleObserver prints the countdown and capture progress.
func consoleObserver(out io.Writer) booth.Observer {
	var (
		mu         sync.Mutex
		processing bool
	)
	return booth.Observer{
		OnCountdown: func(remaining int) {
			if remaining > 0 {
				fmt.Fprintf(out, "%d... ", remaining)
				return
			}
			fmt.Fprintln(out, "Smile!")
		},
		OnProgress: func(p capture.Progress) {
			mu.Lock()
			defer mu.Unlock()
			if p.Indeterminate {
				if !processing {
					processing = true
					fmt.Fprint(out, "\nProcessing...")
				}
				return
			}
			fmt.Fprintf(out, "\rCapturing %3.0f%%", p.Fraction*100)
		},
		OnCaptureFailed: func(e *capture.Error) {
			fmt.Fprintf(out, "\n%s\n", e.Message)
		},
	}
}

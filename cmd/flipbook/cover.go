package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpang/flipbook-booth/internal/coverart"
	"github.com/spf13/cobra"
)

func newCoverCommand() *cobra.Command {
	var (
		prompt  string
		outPath string
		check   bool
	)
	cmd := &cobra.Command{
		Use:   "cover",
		Short: "Generate a cover illustration or check the Gemini API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv("flipbook cover")
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			covers, err := e.covers(ctx)
			if err != nil {
				return err
			}
			if !covers.Enabled() {
				return fmt.Errorf("%w: set GEMINI_API_KEY or enable [cover] in the config", coverart.ErrDisabled)
			}
			out := cmd.OutOrStdout()

			if check {
				if err := covers.Check(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "API key is valid.")
				return nil
			}

			if strings.TrimSpace(prompt) == "" {
				return errors.New("--prompt is required")
			}
			img, err := covers.Generate(ctx, prompt)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(e.cfg.Export.Dir, "cover"+extFor(img.MIMEType))
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if err := os.WriteFile(outPath, img.Data, 0o644); err != nil {
				return fmt.Errorf("write cover: %w", err)
			}
			fmt.Fprintf(out, "Cover: %s (%d bytes)\n", outPath, len(img.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Cover subject")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default <export dir>/cover.<ext>)")
	cmd.Flags().BoolVar(&check, "check", false, "Only verify the API key")
	return cmd
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

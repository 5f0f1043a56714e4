package main

import (
	"fmt"
	"strconv"

	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/spf13/cobra"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the available frame styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv("flipbook styles")
			if err != nil {
				return err
			}
			defer e.Close()
			catalog, err := e.cfg.Catalog()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleTable(catalog))
			return nil
		},
	}
}

func styleTable(catalog *style.Catalog) string {
	rows := make([][]string, 0, len(catalog.All()))
	for _, s := range catalog.All() {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			s.BorderColor.Hex(),
			strconv.Itoa(s.BorderThickness),
			strconv.Itoa(s.CornerRadius),
			s.Overlay.String(),
			style.ContrastColor(s.BorderColor).Hex(),
		})
	}
	return renderTable(
		[]string{"ID", "Name", "Border", "Width", "Radius", "Overlay", "Caption"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

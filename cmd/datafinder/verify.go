package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/verify"
)

func newVerifyCommand(a *app) *cobra.Command {
	var writeReport bool

	cmd := &cobra.Command{
		Use:   "verify [FILE]",
		Short: "Summarise the sheets of a workbook (default: the merge output)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(a.cfg.Paths.OutputDir, a.cfg.Paths.OutputFile)
			if len(args) == 1 {
				path = args[0]
			}

			var (
				report  verify.Report
				saved   string
				saveErr error
			)
			if writeReport {
				saved, report, saveErr = a.service.WriteVerifyReport(path, "")
			} else {
				report = a.service.Verify(path)
			}

			if err := verify.Render(a.out, report); err != nil {
				return err
			}
			if saveErr != nil {
				return a.fail(cmd, fmt.Errorf("%w: %v", loader.ErrWrite, saveErr))
			}
			if saved != "" {
				fmt.Fprintf(a.out, "Report saved to %s\n", saved)
			}
			switch {
			case !report.Exists:
				return a.fail(cmd, loader.ErrNotFound)
			case report.Error != "":
				return a.fail(cmd, errors.Join(loader.ErrExtraction, errors.New(report.Error)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&writeReport, "report", false, "also save <name>_report.txt in the output directory")
	return cmd
}

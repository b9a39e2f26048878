package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datafinder/internal/core"
)

func newMergeCommand(a *app) *cobra.Command {
	var phones, output string

	cmd := &cobra.Command{
		Use:   "merge --phones FILE CLIENT...",
		Short: "Add a Telefone column to client files from a contacts workbook",
		Long: `Builds a name to phone lookup from the contacts workbook, annotates each
client file with a Telefone column and writes them as sheets Planilha1,
Planilha2, ... of one workbook in the output directory. Relative names are
resolved against the input directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.service.RunMerge(a.context(cmd), core.MergeRequest{
				ClientFiles: args,
				PhoneFile:   phones,
				OutputName:  output,
			})

			w := a.out
			for _, f := range report.Files {
				switch {
				case f.Error != "":
					fmt.Fprintf(w, "  %-30s skipped: %s\n", f.File, f.Error)
				case !f.Annotated:
					fmt.Fprintf(w, "  %-30s -> %s (%d rows, no name column)\n", f.File, f.Sheet, f.Rows)
				default:
					fmt.Fprintf(w, "  %-30s -> %s (%d rows, %d of %d phones)\n", f.File, f.Sheet, f.Rows, f.Phones, f.Names)
				}
			}
			if err != nil {
				return a.fail(cmd, err)
			}

			fmt.Fprintf(w, "\nContacts read: %d\n", report.Contacts)
			fmt.Fprintf(w, "Sheets written: %d\n", report.Sheets)
			fmt.Fprintf(w, "Phones filled: %d\n", report.Phones)
			fmt.Fprintf(w, "Output file: %s\n", report.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&phones, "phones", "", "contacts workbook (name in A, landline in D, mobile in E)")
	cmd.Flags().StringVar(&output, "output", "", "output workbook name (default: OUTPUT_FILE)")
	cmd.MarkFlagRequired("phones")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/datafinder/internal/core"
	"github.com/JonMunkholm/datafinder/internal/match"
)

type matchFlags struct {
	source, query             string
	sourceColumn, queryColumn string
	output                    string
	operation                 string
	caseSensitive             bool
	sourceSheet, querySheet   string
	columns                   []string
	useXML                    bool
}

func newMatchCommand(a *app) *cobra.Command {
	var f matchFlags

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Find source rows matching the values of a query spreadsheet",
		Example: `  datafinder match --source dados/grande.xlsx --query dados/consulta.xlsx \
    --source-column Cliente --query-column Nome --output resultados.xlsx
  datafinder match --source vendas.csv --query clientes.xlsx \
    --source-column ID --query-column Codigo --operation equals --output resultados.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMatch(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "source spreadsheet (the large one)")
	fl.StringVar(&f.query, "query", "", "query spreadsheet holding the search values")
	fl.StringVar(&f.sourceColumn, "source-column", "", "column of the source to search")
	fl.StringVar(&f.queryColumn, "query-column", "", "column of the query holding the values")
	fl.StringVar(&f.output, "output", "", "result file (.xlsx, .csv or .tsv)")
	fl.StringVar(&f.operation, "operation", string(match.OpContains), "equals, contains or startswith")
	fl.BoolVar(&f.caseSensitive, "case-sensitive", false, "compare with case")
	fl.StringVar(&f.sourceSheet, "source-sheet", "", "worksheet of the source (default: first)")
	fl.StringVar(&f.querySheet, "query-sheet", "", "worksheet of the query (default: first)")
	fl.StringSliceVar(&f.columns, "columns", nil, "comma-separated result columns (default: all)")
	fl.BoolVar(&f.useXML, "use-xml", false, "read the source through the raw XML extractor")

	for _, name := range []string{"source", "query", "source-column", "query-column", "output"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) runMatch(cmd *cobra.Command, f matchFlags) error {
	op := match.Operation(strings.ToLower(f.operation))
	if !op.Known() {
		return fmt.Errorf("invalid --operation %q: want one of %v", f.operation, match.Operations)
	}

	res, err := a.service.RunMatch(a.context(cmd), core.MatchRequest{
		SourcePath:  f.source,
		QueryPath:   f.query,
		SourceSheet: f.sourceSheet,
		QuerySheet:  f.querySheet,
		Raw:         f.useXML,
		Criteria: []match.Criterion{{
			QueryColumn:   f.queryColumn,
			SourceColumn:  f.sourceColumn,
			Operation:     op,
			CaseSensitive: f.caseSensitive,
		}},
		Columns:    f.columns,
		OutputPath: f.output,
	})
	if err != nil {
		return a.fail(cmd, err)
	}

	w := a.out
	fmt.Fprintln(w, "\n--- Search summary ---")
	fmt.Fprintf(w, "Source:        %s (%d rows)\n", f.source, res.SourceRows)
	fmt.Fprintf(w, "Query:         %s (%d rows)\n", f.query, res.QueryRows)
	fmt.Fprintf(w, "Source column: %s\n", f.sourceColumn)
	fmt.Fprintf(w, "Query column:  %s\n", f.queryColumn)
	fmt.Fprintf(w, "Operation:     %s\n", op)
	fmt.Fprintf(w, "Results found: %d\n", res.Rows)
	fmt.Fprintf(w, "Output file:   %s\n", res.OutputPath)
	fmt.Fprintln(w, "----------------------")
	return nil
}

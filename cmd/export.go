package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/app"
	"github.com/derickschaefer/gridfetch/internal/export"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
	"github.com/derickschaefer/gridfetch/internal/render"
)

var (
	exportInput  string
	exportAppend string
)

var exportCmd = &cobra.Command{
	Use:   "export [NAME]",
	Short: "Export a document as a timestamp-indexed table",
	Long: `Export projects a document onto a table with one row per timestamp and one
column per series. NAME selects a stored document; --input reads a document
written with --format json instead ("-" for stdin).

Output is CSV unless --format is given. With --append the rows are added to
an existing CSV file, skipping timestamps it already holds.`,
	Example: `  gridfetch export cz-load --out cz-load.csv
  gridfetch export cz-load --append cz-load.csv
  gridfetch fetch --request cz-load --start 2024-01-01 --end 2024-01-02 --format json | gridfetch export --input -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		doc, label, err := loadExportDocument(deps, args)
		if err != nil {
			return err
		}
		table := export.Table(&doc.ParsedDocument)

		if exportAppend != "" {
			return appendCSV(cmd, deps, exportAppend, table)
		}

		format := render.FormatCSV
		if globalFlags.Format != "" {
			format = resolveFormat("")
		}
		result := buildTableResult("export "+label, table)
		if n := export.PopulatedCells(table); n != doc.TotalDataPoints {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d populated cells for %d data points (points sharing a timestamp within a series are kept once)", n, doc.TotalDataPoints))
		}
		return emit(cmd, result, format, deps.Config.Verbose)
	},
}

// loadExportDocument reads the document named by args or --input.
func loadExportDocument(deps *app.Deps, args []string) (*model.MergedDocument, string, error) {
	switch {
	case exportInput != "":
		in, err := openInput(exportInput)
		if err != nil {
			return nil, "", err
		}
		defer in.Close()
		doc, err := pipeline.ReadDocument(in)
		return doc, exportInput, err
	case len(args) == 1:
		if err := deps.RequireStore(); err != nil {
			return nil, "", err
		}
		doc, ok, err := deps.Store.GetDocument(args[0])
		if err != nil {
			return nil, "", fmt.Errorf("reading store: %w", err)
		}
		if !ok {
			return nil, "", fmt.Errorf("no stored document %q\n\n  Use: gridfetch fetch --request %s --store", args[0], args[0])
		}
		return doc, args[0], nil
	default:
		return nil, "", fmt.Errorf("give a stored document NAME or --input <file>")
	}
}

// appendCSV merges table into the CSV file at path, creating it if needed.
func appendCSV(cmd *cobra.Command, deps *app.Deps, path string, table model.TabularExport) error {
	existing := model.TabularExport{Columns: []string{export.TimestampColumn}}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if existing, err = export.ReadCSV(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading %s: %w", path, err)
	}

	out, stats := export.AppendRows(existing, table)
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, out); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if !deps.Config.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Appended %d new rows to %s  (%d existing, %d total)\n",
			stats.NewRows, path, stats.ExistingRows, stats.TotalRows)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportInput, "input", "", "read a JSON document from a file (\"-\" for stdin)")
	exportCmd.Flags().StringVar(&exportAppend, "append", "", "append new rows to an existing CSV file")
}

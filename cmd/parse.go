package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/gridfetch/internal/merge"
	"github.com/derickschaefer/gridfetch/internal/model"
	"github.com/derickschaefer/gridfetch/internal/parser"
	"github.com/derickschaefer/gridfetch/internal/pipeline"
	"github.com/derickschaefer/gridfetch/internal/util"
)

// ─── parse ────────────────────────────────────────────────────────────────────

var parseSave string

var parseCmd = &cobra.Command{
	Use:   "parse <FILE|DIR...>",
	Short: "Parse saved XML or ZIP responses and merge them into one document",
	Long: `Parse reads API responses saved on disk (plain XML or ZIP archives holding
an XML entry), parses each one and merges them into a single document.
Directories contribute every .xml and .zip file they contain, in name order.
Files that fail to decode or parse are reported and skipped.`,
	Example: `  gridfetch parse responses/
  gridfetch parse 2020.xml 2021.xml 2022.zip --format csv --out load.csv
  gridfetch parse responses/ --save cz-load`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		started := time.Now()
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no .xml or .zip files found in %s", strings.Join(args, ", "))
		}

		var docs []model.ParsedDocument
		var skipped util.MultiError
		for _, path := range files {
			raw, err := os.ReadFile(path)
			if err != nil {
				skipped.Add(err)
				continue
			}
			doc, err := parser.ParseBytes(raw)
			if err != nil {
				skipped.Add(fmt.Errorf("%s: %w", path, err))
				continue
			}
			deps.Log.Debugf("%s: %d series, %d points", filepath.Base(path), doc.TimeseriesCount, doc.TotalDataPoints)
			docs = append(docs, *doc)
		}
		if len(docs) == 0 {
			return fmt.Errorf("none of %d files could be parsed: %w", len(files), skipped.Err())
		}

		merged, err := merge.Documents(nil, docs...)
		if err != nil {
			return err
		}

		if parseSave != "" {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			if err := deps.Store.PutDocument(parseSave, merged); err != nil {
				return fmt.Errorf("storing document: %w", err)
			}
			if !deps.Config.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Stored %s: %d files, %d points\n", parseSave, len(docs), merged.TotalDataPoints)
			}
		}

		result := buildDocumentResult("parse", merged, started)
		for _, err := range skipped.Errors {
			result.Warnings = append(result.Warnings, err.Error())
		}
		return emit(cmd, result, resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// expandInputs resolves directories to their .xml and .zip entries.
func expandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".xml" || ext == ".zip") {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// ─── merge ────────────────────────────────────────────────────────────────────

var mergeCmd = &cobra.Command{
	Use:   "merge [DOC.json...]",
	Short: "Merge documents written with --format json",
	Long: `Merge combines documents previously written with --format json (or read
from stdin when no files are given). Series with the same identity are joined
and points at the same timestamp are kept once, first occurrence winning.`,
	Example: `  gridfetch fetch --request cz-load --start 2023-01-01 --end 2023-02-01 --format json --out jan.json
  gridfetch fetch --request cz-load --start 2023-02-01 --end 2023-03-01 --format json --out feb.json
  gridfetch merge jan.json feb.json --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		started := time.Now()
		if len(args) == 0 {
			args = []string{"-"}
		}
		merged, err := mergeInputs(args)
		if err != nil {
			return err
		}
		return emit(cmd, buildDocumentResult("merge", merged, started), resolveFormat(deps.Config.Format), deps.Config.Verbose)
	},
}

// mergeInputs reads one JSON document per path ("-" for stdin) and merges
// them in order. A single input goes through the merge as well, so its
// series are deduplicated and its counts recomputed.
func mergeInputs(paths []string) (*model.MergedDocument, error) {
	docs := make([]model.ParsedDocument, 0, len(paths))
	for _, path := range paths {
		in, err := openInput(path)
		if err != nil {
			return nil, err
		}
		doc, err := pipeline.ReadDocument(in)
		in.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc.ParsedDocument)
	}
	merged, err := merge.Documents(nil, docs...)
	if err != nil {
		return nil, fmt.Errorf("merging %s: %w", strings.Join(paths, ", "), err)
	}
	return merged, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(mergeCmd)

	parseCmd.Flags().StringVar(&parseSave, "save", "", "store the merged document under this name")
}

package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/angelshark"
)

func printCmd(loginFile *string) *cobra.Command {
	var prefix string
	var toFile bool
	var headerRow bool
	var format string

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Prints command output to STDOUT (or files) in a useful format",
		Long:  "Runs commands on input and writes their data entries to STDOUT in a variety of formats (and optionally to files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix != "" && !toFile {
				return fmt.Errorf("--prefix requires --to-file")
			}
			switch format {
			case "tsv", "csv", "json":
			default:
				return fmt.Errorf("unsupported format %q (want tsv, csv, or json)", format)
			}

			acms, inputs, err := loadAcmsAndInputs(*loginFile)
			if err != nil {
				return err
			}
			runner := buildRunner(acms, inputs)
			return printResults(runner.Run(), printOptions{
				prefix:    prefix,
				toFile:    toFile,
				headerRow: headerRow,
				format:    format,
			})
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Prepend a prefix to all output filenames")
	cmd.Flags().BoolVarP(&toFile, "to-file", "t", false, "Write output to separate files instead of STDOUT")
	cmd.Flags().BoolVarP(&headerRow, "header-row", "h", false, "Prepend header entry of hexadecimal field addresses to output")
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "Format data should be printed in (csv, json, tsv)")

	return cmd
}

type printOptions struct {
	prefix    string
	toFile    bool
	headerRow bool
	format    string
}

func printResults(results <-chan angelshark.RunResult, opts printOptions) error {
	for res := range results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "angelsharkcli: runner (%s): %v\n", res.Name, res.Err)
			continue
		}
		for _, msg := range res.Messages {
			if msg.Command == "logoff" {
				continue
			}
			if msg.Error != "" {
				fmt.Fprintf(os.Stderr, "angelsharkcli: ossi (%s): %s\n", res.Name, msg.Error)
				continue
			}
			if len(msg.Datas) == 0 {
				continue
			}
			rows := msg.Datas
			if opts.headerRow {
				rows = append([][]string{msg.Fields}, rows...)
			}
			if err := writeRows(res.Name, msg.Command, rows, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRows(name, command string, rows [][]string, opts printOptions) error {
	var w io.Writer = os.Stdout
	if opts.toFile {
		filename := fmt.Sprintf("./%sangelshark -- %s -- %s.%s", opts.prefix, name, command, opts.format)
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to write JSON: %w", err)
		}
	case "csv":
		cw := csv.NewWriter(w)
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
	default: // tsv
		cw := csv.NewWriter(w)
		cw.Comma = '\t'
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write TSV: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("failed to write TSV: %w", err)
		}
	}
	return nil
}

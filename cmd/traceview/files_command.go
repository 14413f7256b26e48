package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ongoingai/traceview/internal/trace"
)

func runFiles(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("files", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() > 1 {
		fmt.Fprintln(errOut, "files accepts at most one trace directory")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("files", *format, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	cfg, ok := loadCommandConfig(*configPath, flagSet.Arg(0), errOut)
	if !ok {
		return 1
	}

	files, err := trace.ListFiles(cfg.Traces.Dir)
	if err != nil {
		fmt.Fprintf(errOut, "failed to list trace files: %v\n", err)
		return 1
	}

	if normalizedFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(files); err != nil {
			fmt.Fprintf(errOut, "failed to write files: %v\n", err)
			return 1
		}
		return 0
	}

	if len(files) == 0 {
		fmt.Fprintf(out, "no trace files in %s\n", cfg.Traces.Dir)
		return 0
	}
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSIZE\tMODIFIED")
	for _, file := range files {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", file.Name, file.Size, file.Modified)
	}
	if err := writer.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write files: %v\n", err)
		return 1
	}
	return 0
}

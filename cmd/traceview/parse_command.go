package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/ongoingai/traceview/internal/loader"
	"github.com/ongoingai/traceview/internal/trace"
)

const defaultParseFormat = "text"

func runParse(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("parse", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultParseFormat, "Output format: text or json")
	errorsOnly := flagSet.Bool("errors", false, "Only show entries with errors")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: traceview parse [--format text|json] [--errors] <file.jsonl>")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("parse", *format, defaultParseFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	cfg, ok := loadCommandConfig(*configPath, "", errOut)
	if !ok {
		return 1
	}

	traceLoader := loader.New(loader.OptionsFromConfig(cfg), newCommandLogger(errOut), nil)
	result, err := traceLoader.LoadPath(context.Background(), flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "failed to parse trace file: %v\n", err)
		return 1
	}

	entries := result.Entries
	if *errorsOnly {
		entries = filterErrorEntries(entries)
	}

	if normalizedFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(entries); err != nil {
			fmt.Fprintf(errOut, "failed to write entries: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeEntriesText(out, result.File, entries, result.Malformed, result.Detection.Tagged); err != nil {
		fmt.Fprintf(errOut, "failed to write entries: %v\n", err)
		return 1
	}
	return 0
}

func filterErrorEntries(entries []*trace.Entry) []*trace.Entry {
	filtered := make([]*trace.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsError() || (entry.Summary != nil && entry.Summary.Error != nil) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func writeEntriesText(out io.Writer, file string, entries []*trace.Entry, malformed, subagents int) error {
	fmt.Fprintf(out, "%s: %d entries, %d malformed, %d sub-agent\n\n", file, len(entries), malformed, subagents)
	if len(entries) == 0 {
		fmt.Fprintln(out, "(no entries)")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "LINE\tTIME\tMETHOD\tPATH\tSTATUS\tDURATION\tMODEL\tTOKENS\tAGENT")
	for _, entry := range entries {
		if entry.IsError() {
			fmt.Fprintf(writer, "%d\t-\t-\t-\t-\t-\t-\t-\t%s\n", entry.Index, entry.Error)
			continue
		}
		summary := entry.Summary
		if summary == nil {
			summary = &trace.Summary{}
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Index,
			stringPtrOr(summary.Timestamp, "-"),
			stringPtrOr(summary.Method, "-"),
			stringPtrOr(summary.URLPath, "-"),
			intPtrOr(summary.Status, "-"),
			stringPtrOr(summary.Duration, "-"),
			stringPtrOr(summary.Model, "-"),
			formatTokens(summary.TokensUsed),
			formatAgent(entry.SubagentInfo),
		)
	}
	return writer.Flush()
}

func intPtrOr(value *int, fallback string) string {
	if value == nil {
		return fallback
	}
	return strconv.Itoa(*value)
}

func formatTokens(usage *trace.TokenUsage) string {
	if usage == nil {
		return "-"
	}
	return intPtrOr(usage.Input, "?") + "/" + intPtrOr(usage.Output, "?")
}

func formatAgent(info *trace.SubagentInfo) string {
	if info == nil || !info.IsSubagent {
		return "main"
	}
	return "subagent:" + stringPtrOr(info.AgentType, "unknown")
}

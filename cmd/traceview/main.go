package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/ongoingai/traceview/internal/version"
)

const defaultConfigPath = "traceview.yaml"

const configFlagUsage = "[--config path/to/traceview.yaml]"

type command struct {
	names []string
	usage string
	run   func(args []string, out, errOut io.Writer) int
}

// commands is consulted in order; the first entry also runs when no
// subcommand is given.
var commands = []command{
	{names: []string{"serve"}, usage: "serve " + configFlagUsage + " [--port N] [trace-dir]", run: runServe},
	{names: []string{"parse"}, usage: "parse " + configFlagUsage + " [--format text|json] [--errors] <file.jsonl>", run: runParse},
	{names: []string{"files"}, usage: "files " + configFlagUsage + " [--format text|json] [trace-dir]", run: runFiles},
	{names: []string{"index"}, usage: "index " + configFlagUsage + " [--format text|json] [trace-dir]", run: runIndex},
	{names: []string{"report"}, usage: "report " + configFlagUsage + " [--format text|json] [--file NAME] [--provider NAME] [--model NAME] [--from RFC3339|YYYY-MM-DD] [--to RFC3339|YYYY-MM-DD]", run: runReport},
	{names: []string{"config"}, usage: "config validate " + configFlagUsage, run: runConfig},
	{names: []string{"version", "--version", "-v"}, usage: "version [--format text|json]", run: runVersion},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		return commands[0].run(nil, out, errOut)
	}
	name := args[0]
	if name == "help" || name == "--help" || name == "-h" {
		printUsage(out)
		return 0
	}
	for _, cmd := range commands {
		if slices.Contains(cmd.names, name) {
			return cmd.run(args[1:], out, errOut)
		}
	}
	printUsage(errOut)
	return 2
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	for _, cmd := range commands {
		fmt.Fprintln(out, "  traceview "+cmd.usage)
	}
}

func runVersion(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("version", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	format := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	outputFormat, err := normalizeTextJSONFormat("version", *format, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	if outputFormat == "text" {
		fmt.Fprintln(out, version.String())
		return 0
	}
	if err := json.NewEncoder(out).Encode(version.Current()); err != nil {
		fmt.Fprintf(errOut, "failed to write version: %v\n", err)
		return 1
	}
	return 0
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "validate" {
		fmt.Fprintln(errOut, "Usage:\n  traceview config validate "+configFlagUsage)
		return 2
	}

	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args[1:]); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}
	if _, ok := loadCommandConfig(*configPath, "", errOut); !ok {
		return 1
	}
	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	return 0
}

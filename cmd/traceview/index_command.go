package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ongoingai/traceview/internal/loader"
)

func runIndex(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("index", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", "text", "Output format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() > 1 {
		fmt.Fprintln(errOut, "index accepts at most one trace directory")
		return 2
	}
	normalizedFormat, err := normalizeTextJSONFormat("index", *format, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}

	cfg, ok := loadCommandConfig(*configPath, flagSet.Arg(0), errOut)
	if !ok {
		return 1
	}
	if !cfg.Storage.IndexEnabled() {
		fmt.Fprintln(errOut, "index requires storage.driver sqlite or postgres")
		return 1
	}

	store, err := openIndexStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize index store: %v\n", err)
		return 1
	}
	defer closeIndexStoreWithWarning(store, errOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := loader.New(loader.OptionsFromConfig(cfg), newCommandLogger(errOut), nil).IndexAll(ctx, store)
	if err != nil {
		fmt.Fprintf(errOut, "failed to index trace files: %v\n", err)
		return 1
	}

	if normalizedFormat == "json" {
		if err := json.NewEncoder(out).Encode(summary); err != nil {
			fmt.Fprintf(errOut, "failed to write summary: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(
		out,
		"indexed %d records from %d files into %s (%d replaced, %d malformed lines skipped)\n",
		summary.Records,
		summary.Files,
		store.Driver(),
		summary.Replaced,
		summary.Malformed,
	)
	return 0
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ongoingai/traceview/internal/config"
	"github.com/ongoingai/traceview/internal/index"
)

const reportSchemaVersion = "report.v1"

// reportDocument is the JSON shape of `traceview report --format json`.
type reportDocument struct {
	SchemaVersion string             `json:"schema_version"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Storage       reportStorage      `json:"storage"`
	Filters       reportFilters      `json:"filters"`
	Summary       reportSummary      `json:"summary"`
	Models        []index.ModelStats `json:"models"`
	Agents        []index.AgentStats `json:"agents"`
}

type reportStorage struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
}

type reportFilters struct {
	File     string     `json:"file,omitempty"`
	Provider string     `json:"provider,omitempty"`
	Model    string     `json:"model,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

type reportSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	SubagentRequests  int64   `json:"subagent_requests"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	TopModel          string  `json:"top_model,omitempty"`
}

func runReport(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("report", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", "text", "Output format: text or json")
	from := flagSet.String("from", "", "Report start (RFC3339 or YYYY-MM-DD)")
	to := flagSet.String("to", "", "Report end (RFC3339 or YYYY-MM-DD)")
	file := flagSet.String("file", "", "Only records from this trace file")
	provider := flagSet.String("provider", "", "Only records from this provider")
	model := flagSet.String("model", "", "Only records for this model")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "report does not accept positional arguments")
		return 2
	}
	outputFormat, err := normalizeTextJSONFormat("report", *format, "text")
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	filter := index.AnalyticsFilter{
		File:     strings.TrimSpace(*file),
		Provider: strings.TrimSpace(*provider),
		Model:    strings.TrimSpace(*model),
	}
	if filter.From, filter.To, err = index.ParseTimeRange(*from, *to); err != nil {
		fmt.Fprintf(errOut, "invalid range: %v\n", err)
		return 2
	}

	cfg, ok := loadCommandConfig(*configPath, "", errOut)
	if !ok {
		return 1
	}
	if !cfg.Storage.IndexEnabled() {
		fmt.Fprintln(errOut, "report requires storage.driver sqlite or postgres")
		return 1
	}
	store, err := openIndexStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize index store: %v\n", err)
		return 1
	}
	defer closeIndexStoreWithWarning(store, errOut)

	report, err := buildReport(context.Background(), store, cfg, filter)
	if err != nil {
		fmt.Fprintf(errOut, "failed to build report: %v\n", err)
		return 1
	}
	if outputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(report)
	} else {
		err = writeReportText(out, report)
	}
	if err != nil {
		fmt.Fprintf(errOut, "failed to write report: %v\n", err)
		return 1
	}
	return 0
}

// buildReport runs the model and agent aggregations concurrently and derives
// the headline totals from the model rows.
func buildReport(ctx context.Context, store index.Store, cfg config.Config, filter index.AnalyticsFilter) (reportDocument, error) {
	report := reportDocument{
		SchemaVersion: reportSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Storage:       reportStorage{Driver: store.Driver()},
		Filters: reportFilters{
			File:     filter.File,
			Provider: filter.Provider,
			Model:    filter.Model,
			From:     optionalUTC(filter.From),
			To:       optionalUTC(filter.To),
		},
	}
	if report.Storage.Driver == config.StorageDriverSQLite {
		report.Storage.Path = cfg.Storage.Path
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		report.Models, err = store.GetModelStats(groupCtx, filter)
		return err
	})
	group.Go(func() (err error) {
		report.Agents, err = store.GetAgentStats(groupCtx, filter)
		return err
	})
	if err := group.Wait(); err != nil {
		return reportDocument{}, err
	}
	if report.Models == nil {
		report.Models = []index.ModelStats{}
	}
	if report.Agents == nil {
		report.Agents = []index.AgentStats{}
	}

	summary := &report.Summary
	var topRequests int64
	for _, row := range report.Models {
		summary.TotalRequests += row.RequestCount
		summary.TotalErrors += row.ErrorCount
		summary.TotalInputTokens += row.InputTokens
		summary.TotalOutputTokens += row.OutputTokens
		summary.TotalTokens += row.TotalTokens
		summary.TotalCostUSD += row.TotalCostUSD
		if row.RequestCount > topRequests || (row.RequestCount == topRequests && row.Model < summary.TopModel) {
			topRequests = row.RequestCount
			summary.TopModel = row.Model
		}
	}
	for _, row := range report.Agents {
		if row.IsSubagent {
			summary.SubagentRequests += row.RequestCount
		}
	}
	return report, nil
}

// reportSection is one titled block of the text report. Rows are tab
// separated; a nil header renders label/value pairs.
type reportSection struct {
	title  string
	header []string
	rows   [][]string
	empty  string
}

func writeReportText(out io.Writer, report reportDocument) error {
	all := "(all)"
	sections := []reportSection{
		{
			title: "Traceview Report",
			rows: [][]string{
				{"Generated at", report.GeneratedAt.Format(time.RFC3339)},
				{"Storage", strings.TrimSpace(report.Storage.Driver + " " + report.Storage.Path)},
				{"File", valueOr(report.Filters.File, all)},
				{"Provider", valueOr(report.Filters.Provider, all)},
				{"Model", valueOr(report.Filters.Model, all)},
				{"From", formatOptionalTime(report.Filters.From, all)},
				{"To", formatOptionalTime(report.Filters.To, all)},
			},
		},
		{
			title: "Summary",
			rows: [][]string{
				{"Requests", fmt.Sprint(report.Summary.TotalRequests)},
				{"Errors", fmt.Sprint(report.Summary.TotalErrors)},
				{"Sub-agent requests", fmt.Sprint(report.Summary.SubagentRequests)},
				{"Tokens (in/out/total)", fmt.Sprintf("%d/%d/%d", report.Summary.TotalInputTokens, report.Summary.TotalOutputTokens, report.Summary.TotalTokens)},
				{"Estimated cost (USD)", fmt.Sprintf("%.6f", report.Summary.TotalCostUSD)},
				{"Top model", valueOr(report.Summary.TopModel, "(none)")},
			},
		},
		{
			title:  "Models",
			header: []string{"MODEL", "PROVIDER", "REQUESTS", "ERRORS", "TOKENS", "COST_USD", "AVG_MS"},
			empty:  "(no model data)",
		},
		{
			title:  "Agents",
			header: []string{"AGENT", "SUBAGENT", "REQUESTS", "TOKENS", "COST_USD"},
			empty:  "(no agent data)",
		},
	}
	for _, row := range report.Models {
		sections[2].rows = append(sections[2].rows, []string{
			valueOr(row.Model, "(unknown)"),
			valueOr(row.Provider, "(unknown)"),
			fmt.Sprint(row.RequestCount),
			fmt.Sprint(row.ErrorCount),
			fmt.Sprint(row.TotalTokens),
			fmt.Sprintf("%.6f", row.TotalCostUSD),
			fmt.Sprintf("%.2f", row.AvgDurationMS),
		})
	}
	for _, row := range report.Agents {
		sections[3].rows = append(sections[3].rows, []string{
			valueOr(row.AgentType, "main"),
			fmt.Sprint(row.IsSubagent),
			fmt.Sprint(row.RequestCount),
			fmt.Sprint(row.TotalTokens),
			fmt.Sprintf("%.6f", row.TotalCostUSD),
		})
	}

	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := section.write(out); err != nil {
			return err
		}
	}
	return nil
}

func (s reportSection) write(out io.Writer) error {
	fmt.Fprintln(out, s.title)
	if len(s.rows) == 0 && s.empty != "" {
		_, err := fmt.Fprintln(out, s.empty)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if s.header != nil {
		fmt.Fprintln(tw, strings.Join(s.header, "\t"))
	}
	for _, row := range s.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func optionalUTC(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func formatOptionalTime(value *time.Time, fallback string) string {
	if value == nil {
		return fallback
	}
	return value.Format(time.RFC3339)
}

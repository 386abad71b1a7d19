package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/investigation"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/orchestrator"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/plan"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/procurement"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

var (
	investigateDepth    string
	investigateEntities []string
	investigateKinds    []string
	investigateFrom     string
	investigateTo       string
	investigateJSON     bool
	investigateQuiet    bool
)

var investigateCmd = &cobra.Command{
	Use:   "investigate [prompt...]",
	Short: "Run an investigation over the configured data sources",
	Long: `Plan and execute an investigation. The free-text prompt steers which
detection capabilities are selected; --depth widens or narrows the default
set. Progress events stream to stderr while the investigation runs.

Examples:
  sindica investigate --entity 26000 "superfaturamento em contratos de obras"
  sindica investigate --depth deep --from 2023-01-01 "conluio em licitacoes"`,
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().StringVarP(&investigateDepth, "depth", "d", "standard",
		"Investigation depth: quick, standard, or deep")
	investigateCmd.Flags().StringArrayVarP(&investigateEntities, "entity", "e", nil,
		"CNPJ or organ code to scope the investigation (repeatable)")
	investigateCmd.Flags().StringArrayVarP(&investigateKinds, "kind", "k", nil,
		"Record kinds to fetch: contracts, payments, bids (repeatable; default all)")
	investigateCmd.Flags().StringVar(&investigateFrom, "from", "",
		"Start of the analysis window (YYYY-MM-DD)")
	investigateCmd.Flags().StringVar(&investigateTo, "to", "",
		"End of the analysis window (YYYY-MM-DD)")
	investigateCmd.Flags().BoolVar(&investigateJSON, "json", false,
		"Output the final aggregate as JSON")
	investigateCmd.Flags().BoolVarP(&investigateQuiet, "quiet", "q", false,
		"Suppress progress events")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	query, err := buildQuery()
	if err != nil {
		return err
	}
	req := plan.Request{
		Prompt: strings.Join(args, " "),
		Query:  query,
		Depth:  types.Depth(investigateDepth),
	}

	service, err := investigation.New(cfg, investigation.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	id, err := service.Submit(ctx, req)
	if err != nil {
		return err
	}
	if !investigateQuiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "investigation %s submitted\n", id)
	}

	var stopStreaming func()
	if !investigateQuiet {
		stopStreaming = streamProgress(ctx, cmd, service, id)
	}

	aggregate, runErr := service.Result(ctx, id)
	if stopStreaming != nil {
		stopStreaming()
	}
	if runErr != nil && aggregate == nil {
		return runErr
	}

	if err := printAggregate(cmd, aggregate); err != nil {
		return err
	}
	return runErr
}

func buildQuery() (procurement.Query, error) {
	query := procurement.Query{
		Entities: investigateEntities,
		Kinds:    investigateKinds,
	}
	if investigateFrom != "" {
		from, err := time.Parse("2006-01-02", investigateFrom)
		if err != nil {
			return procurement.Query{}, fmt.Errorf("invalid --from date %q: %w", investigateFrom, err)
		}
		query.From = from
	}
	if investigateTo != "" {
		to, err := time.Parse("2006-01-02", investigateTo)
		if err != nil {
			return procurement.Query{}, fmt.Errorf("invalid --to date %q: %w", investigateTo, err)
		}
		query.To = to
	}
	return query, nil
}

// streamProgress prints investigation events to stderr until stopped.
func streamProgress(ctx context.Context, cmd *cobra.Command, service *investigation.Service, id types.ID) func() {
	ch, cleanup, err := service.Subscribe(ctx, id)
	if err != nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range ch {
			line := string(event.Type)
			if event.NodeID != "" {
				line += " " + event.NodeID
			}
			if event.Message != "" {
				line += ": " + event.Message
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", line)
		}
	}()

	return func() {
		cleanup()
		<-done
	}
}

func printAggregate(cmd *cobra.Command, aggregate *orchestrator.Aggregate) error {
	if aggregate == nil {
		return nil
	}

	out := cmd.OutOrStdout()
	if investigateJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(aggregate)
	}

	fmt.Fprintf(out, "Investigation %s: %s\n", aggregate.InvestigationID, aggregate.Status)
	fmt.Fprintf(out, "Overall confidence: %.2f\n", aggregate.OverallConfidence)
	if aggregate.SkippedRecordCount > 0 {
		fmt.Fprintf(out, "Skipped malformed records: %d\n", aggregate.SkippedRecordCount)
	}
	if len(aggregate.FailedCapabilities) > 0 {
		fmt.Fprintf(out, "Failed capabilities: %s\n", strings.Join(aggregate.FailedCapabilities, ", "))
	}

	fmt.Fprintf(out, "\nFindings (%d):\n", len(aggregate.Findings))
	for _, f := range aggregate.Findings {
		fmt.Fprintf(out, "  [%s] %s (confidence %.2f)\n", f.Severity, f.Title, f.Confidence)
		for _, entity := range f.AffectedEntities {
			fmt.Fprintf(out, "      entity: %s\n", entity)
		}
	}

	if aggregate.Report != "" {
		fmt.Fprintf(out, "\nReport:\n%s\n", aggregate.Report)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/ecosynthesia/pkg/benchmark"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/models"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/orchestration"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/server"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/tracking"
	"github.com/Protocol-Lattice/ecosynthesia/pkg/validation"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := newPipeline(ctx, a.cfg, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer p.Close(context.WithoutCancel(ctx))
			if addr == "" {
				addr = a.cfg.Addr
			}
			srv := server.New(p.service, server.Options{
				MaxConcurrent:  a.cfg.MaxConcurrent,
				MaxBodyBytes:   a.cfg.MaxBodyBytes,
				RequestTimeout: a.cfg.RequestTimeout,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from ADDR)")
	return cmd
}

func (a *app) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file> [document_id] [title]",
		Short: "Chunk, embed and store a document without analyzing it",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPipeline(ctx, a.cfg, nil)
			if err != nil {
				return err
			}
			defer p.Close(context.WithoutCancel(ctx))
			var id, title string
			if len(args) > 1 {
				id = args[1]
			}
			if len(args) > 2 {
				title = args[2]
			}
			n, err := p.service.Ingest(ctx, args[0], id, title)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %s\n", n, args[0])
			return nil
		},
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run the full analysis of one document and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPipeline(ctx, a.cfg, nil)
			if err != nil {
				return err
			}
			defer p.Close(context.WithoutCancel(ctx))
			out, err := p.service.AnalyzeDocument(ctx, orchestration.Request{FilePath: args[0], DocumentID: id, Title: title})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&id, "document-id", "", "document id (default: file name)")
	cmd.Flags().StringVar(&title, "title", "", "document title")
	return cmd
}

// loadPlan returns the YAML plan at path, or the default plan with the
// configured provider when path is empty.
func (a *app) loadPlan(path string) (benchmark.Plan, error) {
	if path != "" {
		return benchmark.LoadPlan(path)
	}
	p := benchmark.DefaultPlan()
	p.Provider = a.cfg.LLM.Provider
	return p, nil
}

func (a *app) benchmarkCmd() *cobra.Command {
	var planPath string
	var modelNames []string
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Score candidate models against the reference documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			plan, err := a.loadPlan(planPath)
			if err != nil {
				return err
			}
			if len(modelNames) > 0 {
				plan.Models = modelNames
			}
			refs, err := benchmark.LoadReferences(plan.ReferenceFile, plan.ReportsDir)
			if err != nil {
				return err
			}
			st, err := tracking.Open(ctx, a.cfg.Tracking.DSN)
			if err != nil {
				return err
			}
			defer st.Close()
			diag, err := os.Create(plan.DiagnosticFile)
			if err != nil {
				return err
			}
			defer diag.Close()

			llmCfg := a.cfg.LLM
			llmCfg.Provider = plan.Provider
			r := &benchmark.Runner{
				Tracking:   st,
				Experiment: plan.Experiment,
				NewLLM: func(ctx context.Context, model string) (models.LLM, error) {
					return newLLM(ctx, llmCfg, model)
				},
				Diagnostics: benchmark.NewDiagnostics(diag),
			}
			clog.FromContext(ctx).Infof("benchmarking %s over %d documents", strings.Join(plan.Models, ", "), len(refs))
			return r.Run(ctx, plan.Models, refs)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "YAML benchmark plan")
	cmd.Flags().StringSliceVar(&modelNames, "models", nil, "models to benchmark (overrides the plan)")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var planPath, csvPath, xlsxPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the benchmark leaderboard and export it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			plan, err := a.loadPlan(planPath)
			if err != nil {
				return err
			}
			st, err := tracking.Open(ctx, a.cfg.Tracking.DSN)
			if err != nil {
				return err
			}
			defer st.Close()
			rows, err := benchmark.Report(ctx, st, plan.Experiment)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no runs in experiment %q", plan.Experiment)
			}
			if err := benchmark.WriteTable(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			if csvPath != "" {
				f, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				if err := benchmark.WriteCSV(f, rows); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}
			if xlsxPath != "" {
				if err := benchmark.WriteXLSX(xlsxPath, rows); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "YAML benchmark plan")
	cmd.Flags().StringVar(&csvPath, "csv", "benchmark_results.csv", "CSV output path (empty to skip)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "benchmark_results.xlsx", "XLSX output path (empty to skip)")
	return cmd
}

// errValidationFailed makes the process exit non-zero after a full report.
var errValidationFailed = errors.New("validation failed")

func (a *app) validateCmd() *cobra.Command {
	var (
		docID, url, refsPath, experiment string
		thresholdsPath                   string
		threshold                        float64
		concurrency                      int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a deployed service against the reference documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			refs, err := benchmark.LoadReferences(refsPath, validation.ReportsPrefix)
			if err != nil {
				return err
			}
			if docID != "" {
				refs = validation.Filter(refs, docID)
			}
			thresholds := validation.DefaultThresholds()
			if thresholdsPath != "" {
				if thresholds, err = validation.LoadThresholds(thresholdsPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("threshold") {
				thresholds.Rouge1 = threshold
			}

			v := &validation.Validator{
				Client:      validation.NewClient(url),
				Experiment:  experiment,
				Thresholds:  thresholds,
				Concurrency: concurrency,
			}
			if !a.cfg.Tracking.Disabled {
				st, err := tracking.Open(ctx, a.cfg.Tracking.DSN)
				if err != nil {
					return err
				}
				defer st.Close()
				v.Tracking = st
			}
			sum, err := v.Run(ctx, refs)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Documents tested:  %d\nSuccessful:        %d\nFailed:            %d\n", sum.Total, sum.Successful, sum.Failed)
			fmt.Fprintf(w, "Avg ROUGE-1 F1:    %.4f (threshold: %.2f)\n", sum.AvgRouge1, thresholds.Rouge1)
			fmt.Fprintf(w, "Avg ROUGE-2 F1:    %.4f\n", sum.AvgRouge2)
			fmt.Fprintf(w, "Avg ROUGE-L F1:    %.4f (threshold: %.2f)\n", sum.AvgRougeL, thresholds.RougeL)
			fmt.Fprintf(w, "Category accuracy: %.1f%% (threshold: %.0f%%)\n", sum.CategoryAccuracy*100, thresholds.CategoryAccuracy*100)
			fmt.Fprintf(w, "Avg latency:       %.1fs\n", sum.AvgLatency)
			if !sum.Passed(thresholds) {
				return errValidationFailed
			}
			fmt.Fprintln(w, "VALIDATION PASSED")
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "doc-id", "", "validate one document only")
	cmd.Flags().Float64Var(&threshold, "threshold", validation.DefaultThresholds().Rouge1, "ROUGE-1 threshold")
	cmd.Flags().StringVar(&url, "url", envOr("IA_SERVICE_URL", "http://localhost:8000"), "analysis service URL")
	cmd.Flags().StringVar(&refsPath, "references", filepath.Join("benchmarking", "references_data.json"), "reference data file")
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", "", "YAML thresholds file")
	cmd.Flags().StringVar(&experiment, "experiment", "ecoSynthesIA_Validation", "tracking experiment")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "documents validated in parallel")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

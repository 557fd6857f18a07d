package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/config"
	"github.com/MrPrayat/DA235X/internal/evaluate"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/svcctx"
)

var (
	evalRunName string
	evalNotes   string
	evalNoLog   bool
	evalXLSX    string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score every record against its ground truth",
	Long: `Evaluate compares model_output with ground_truth in every record under
<home>/records. Fields whose ground truth is null are skipped, so partly
annotated records only count what was labeled.

The summary is appended to the run log (logs/evaluation_log.csv) unless
--no-log is given.

Examples:
  besiktning evaluate --run-name gpt-4o-first --notes "new roof prompt"
  besiktning evaluate -o text --no-log
  besiktning evaluate --xlsx evaluation/latest.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		cfg := svcs.Config.Get()

		store, err := recordStore(svcs, cfg)
		if err != nil {
			return err
		}
		recs, err := store.List()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no records in %s", store.Dir())
		}

		engine := evaluate.NewEngine(svcs.Schema, evaluationPolicy(svcs.Schema, cfg))
		report := engine.Evaluate(recs)

		name := evalRunName
		if name == "" {
			name = "run-" + time.Now().UTC().Format("20060102-150405")
		}
		run := evaluate.NewRun(name, evalNotes, report, time.Now())

		if !evalNoLog {
			log := evaluate.NewRunLog(runLogPath(svcs, cfg))
			if err := log.Append(run); err != nil {
				return err
			}
			svcctx.LoggerFrom(cmd.Context()).Info("appended run", "run_name", name, "log", log.Path())
		}

		if evalXLSX != "" {
			path := evalXLSX
			if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
				path = filepath.Join(svcs.Home.EvaluationDir(), path)
			}
			if err := writeWorkbook(path, report, &run); err != nil {
				return err
			}
			svcs.Logger.Info("wrote workbook", "path", path)
		}

		if output.IsText() {
			return output.Print(reportView{report})
		}
		return output.Print(report)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalRunName, "run-name", "", "name recorded in the run log (default: run-<timestamp>)")
	evaluateCmd.Flags().StringVar(&evalNotes, "notes", "", "free-form notes recorded in the run log")
	evaluateCmd.Flags().BoolVar(&evalNoLog, "no-log", false, "do not append to the run log")
	evaluateCmd.Flags().StringVar(&evalXLSX, "xlsx", "", "also write the report as an Excel workbook")

	rootCmd.AddCommand(evaluateCmd)
}

func recordStore(svcs *svcctx.Services, cfg *config.Config) (*records.Store, error) {
	seed, err := schema.ParseSeedPolicy(cfg.Evaluation.SeedPolicy)
	if err != nil {
		return nil, err
	}
	return records.NewStore(svcs.Home.RecordsDir(), svcs.Schema, seed, svcs.Logger), nil
}

func evaluationPolicy(s *schema.Schema, cfg *config.Config) evaluate.Policy {
	if len(cfg.Evaluation.Unambiguous) > 0 {
		return evaluate.NewPolicy(cfg.Evaluation.Unambiguous...)
	}
	return evaluate.NewPolicy(s.Unambiguous()...)
}

func runLogPath(svcs *svcctx.Services, cfg *config.Config) string {
	if cfg.Evaluation.RunLog != "" {
		return svcs.Home.Resolve(cfg.Evaluation.RunLog)
	}
	return svcs.Home.RunLogPath()
}

func writeWorkbook(path string, report *evaluate.Report, run *evaluate.Run) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	if err := evaluate.WriteXLSX(f, report, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// reportView prints one row per field plus the micro and macro summaries.
type reportView struct {
	report *evaluate.Report
}

func (reportView) Header() []string {
	return []string{"FIELD", "TP", "FP", "FN", "PRECISION", "RECALL", "F1", "ACCURACY"}
}

func (v reportView) Rows() [][]string {
	rows := make([][]string, 0, len(v.report.Rows)+2)
	for _, r := range v.report.Rows {
		name := r.Field
		if strings.Contains(name, ".") {
			name = "  " + name
		}
		rows = append(rows, metricRow(name, r.Counts, r.Metrics))
	}
	rows = append(rows,
		metricRow("MICRO", v.report.Totals, v.report.Micro),
		metricRow("MACRO", evaluate.Counts{}, v.report.Macro),
	)
	return rows
}

func metricRow(name string, c evaluate.Counts, m evaluate.Metrics) []string {
	return []string{
		name,
		strconv.Itoa(c.TP),
		strconv.Itoa(c.FP),
		strconv.Itoa(c.FN),
		ratio(m.Precision),
		ratio(m.Recall),
		ratio(m.F1),
		ratio(m.Accuracy),
	}
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

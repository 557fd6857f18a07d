package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/evaluate"
	"github.com/MrPrayat/DA235X/internal/output"
)

var (
	runsLast   int
	runsWindow int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Summarize the evaluation run log",
	Long: `Runs reads the evaluation run log and reports the most recent runs, the
run with the best F1 score, and the average metrics over a rolling window
of days ending at the latest run.

Examples:
  besiktning runs
  besiktning runs --last 5 --window 14 -o text`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		cfg := svcs.Config.Get()

		runs, err := evaluate.NewRunLog(runLogPath(svcs, cfg)).Read()
		if err != nil {
			return err
		}
		summary := evaluate.Summarize(runs, runsLast, runsWindow)
		if output.IsText() {
			return output.Print(summaryView{summary})
		}
		return output.Print(summary)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLast, "last", 10, "number of recent runs to show")
	runsCmd.Flags().IntVar(&runsWindow, "window", 5, "rolling window in days")

	rootCmd.AddCommand(runsCmd)
}

// summaryView prints the recent runs, then the best run and the rolling
// average.
type summaryView struct {
	s evaluate.Summary
}

func (summaryView) Header() []string {
	return []string{"TIMESTAMP", "RUN", "TP", "FP", "FN", "PRECISION", "RECALL", "F1", "ACCURACY"}
}

func (v summaryView) Rows() [][]string {
	row := func(ts, name string, r evaluate.Run) []string {
		return []string{
			ts, name,
			strconv.Itoa(r.Counts.TP),
			strconv.Itoa(r.Counts.FP),
			strconv.Itoa(r.Counts.FN),
			ratio(r.Metrics.Precision),
			ratio(r.Metrics.Recall),
			ratio(r.Metrics.F1),
			ratio(r.Metrics.Accuracy),
		}
	}
	var rows [][]string
	for _, r := range v.s.Recent {
		rows = append(rows, row(r.Timestamp.Format("2006-01-02 15:04"), r.Name, r))
	}
	if v.s.Best != nil {
		rows = append(rows, row("BEST", v.s.Best.Name, *v.s.Best))
	}
	if v.s.RollingRuns > 0 {
		m := v.s.Rolling
		rows = append(rows, []string{
			strconv.Itoa(v.s.WindowDays) + "D MEAN",
			strconv.Itoa(v.s.RollingRuns) + " runs",
			"", "", "",
			ratio(m.Precision),
			ratio(m.Recall),
			ratio(m.F1),
			ratio(m.Accuracy),
		})
	}
	return rows
}

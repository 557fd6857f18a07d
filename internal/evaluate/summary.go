package evaluate

import "time"

// Summary condenses the run log.
type Summary struct {
	Runs   int   `json:"runs" yaml:"runs"`
	Recent []Run `json:"recent" yaml:"recent"`
	Best   *Run  `json:"best,omitempty" yaml:"best,omitempty"`
	// Rolling averages the runs within WindowDays of the latest run.
	Rolling     Metrics `json:"rolling" yaml:"rolling"`
	RollingRuns int     `json:"rolling_runs" yaml:"rolling_runs"`
	WindowDays  int     `json:"window_days" yaml:"window_days"`
}

// Summarize reports the last n runs, the run with the best F1 (the earliest
// on ties) and the average metrics over the window ending at the latest
// run. runs must be sorted by timestamp, as RunLog.Read returns them.
func Summarize(runs []Run, last, windowDays int) Summary {
	s := Summary{Runs: len(runs), WindowDays: windowDays}
	if len(runs) == 0 {
		return s
	}

	if last <= 0 || last > len(runs) {
		last = len(runs)
	}
	s.Recent = append([]Run(nil), runs[len(runs)-last:]...)

	best := runs[0]
	for _, r := range runs[1:] {
		if r.Metrics.F1 > best.Metrics.F1 {
			best = r
		}
	}
	s.Best = &best

	if windowDays > 0 {
		end := runs[len(runs)-1].Timestamp
		start := end.Add(-time.Duration(windowDays) * 24 * time.Hour)
		var window []Metrics
		for _, r := range runs {
			if r.Timestamp.After(start) && !r.Timestamp.After(end) {
				window = append(window, r.Metrics)
			}
		}
		s.Rolling = mean(window)
		s.RollingRuns = len(window)
	}
	return s
}

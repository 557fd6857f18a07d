package main

import (
	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/svcctx"
)

var (
	callsRunID    string
	callsDocID    string
	callsPrompt   string
	callsFailed   bool
	callsLimit    int
	callsCountOut bool
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Query the model call trace",
	Long: `Calls reads logs/llm_calls.jsonl, which is written when
extraction.trace_calls is enabled.

Examples:
  besiktning calls --pdf 1043
  besiktning calls --run <run-id> --failed
  besiktning calls --count`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := llmcall.QueryFilter{
			RunID:      callsRunID,
			DocumentID: callsDocID,
			PromptKey:  callsPrompt,
			Limit:      callsLimit,
		}
		if callsFailed {
			ok := false
			filter.Success = &ok
		}
		path := svcctx.HomeFrom(cmd.Context()).CallLogPath()
		if callsCountOut {
			counts, err := llmcall.CountByPromptKey(path, filter)
			if err != nil {
				return err
			}
			return output.Print(counts)
		}
		calls, err := llmcall.List(path, filter)
		if err != nil {
			return err
		}
		return output.Print(calls)
	},
}

func init() {
	callsCmd.Flags().StringVar(&callsRunID, "run", "", "only calls of this batch run id")
	callsCmd.Flags().StringVar(&callsDocID, "pdf", "", "only calls for this document id")
	callsCmd.Flags().StringVar(&callsPrompt, "prompt", "", "only calls using this prompt key")
	callsCmd.Flags().BoolVar(&callsFailed, "failed", false, "only failed calls")
	callsCmd.Flags().IntVar(&callsLimit, "limit", 50, "maximum calls to print (0 = all)")
	callsCmd.Flags().BoolVar(&callsCountOut, "count", false, "print call counts per prompt key instead")

	rootCmd.AddCommand(callsCmd)
}


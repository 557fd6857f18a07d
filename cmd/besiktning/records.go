package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/evaluate"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/svcctx"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage extraction records and their ground truth",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List record ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		store, err := recordStore(svcs, svcs.Config.Get())
		if err != nil {
			return err
		}
		ids, err := store.IDs()
		if err != nil {
			return err
		}
		return output.Print(map[string]any{"dir": store.Dir(), "ids": ids})
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		store, err := recordStore(svcs, svcs.Config.Get())
		if err != nil {
			return err
		}
		rec, err := store.Load(args[0])
		if err != nil {
			return err
		}
		return output.Print(rec)
	},
}

var recordsTemplateCmd = &cobra.Command{
	Use:   "template <id>...",
	Short: "Create empty records for manual labeling",
	Long: `Template writes a record with an all-null model_output and a seeded
ground_truth for each id, ready to be filled in by hand. Existing records
are never overwritten.

The ground truth is seeded according to evaluation.seed_policy: "null"
leaves every value null so unlabeled fields are skipped by evaluate,
"booleans_false" starts boolean sub-keys at false.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		store, err := recordStore(svcs, svcs.Config.Get())
		if err != nil {
			return err
		}
		created := make([]string, 0, len(args))
		for _, id := range args {
			if _, err := store.Template(id); err != nil {
				return err
			}
			created = append(created, store.Path(id))
		}
		return output.Print(map[string]any{"created": created})
	},
}

var conformSeedFalse bool

var recordsConformCmd = &cobra.Command{
	Use:   "conform",
	Short: "Rewrite every record into the current schema shape",
	Long: `Conform reshapes model_output and ground_truth of every record so each
has exactly the current schema's fields and sub-keys. Values that cannot
be read become null.

With --seed-false, ground-truth booleans that are still null are set to
false, for annotators who only mark the true cases.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		store, err := recordStore(svcs, svcs.Config.Get())
		if err != nil {
			return err
		}
		res, err := store.Conform(conformSeedFalse)
		if err != nil {
			return err
		}
		return output.Print(res)
	},
}

var recordsSanityCmd = &cobra.Command{
	Use:   "sanity",
	Short: "List disagreements on unambiguous fields",
	Long: `Sanity lists every record where model output and ground truth both have
a value for an unambiguous field (such as the property designation) and
the values differ. These are usually labeling mistakes or consistent
misreads worth a second look.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svcs := services(cmd)
		cfg := svcctx.ConfigFrom(ctx)
		store, err := recordStore(svcs, cfg)
		if err != nil {
			return err
		}
		recs, err := store.List()
		if err != nil {
			return err
		}
		s := svcctx.SchemaFrom(ctx)
		mismatches := evaluate.Sanity(s, evaluationPolicy(s, cfg), recs)
		if output.IsText() {
			return output.Print(mismatchView(mismatches))
		}
		return output.Print(map[string]any{"checked": len(recs), "mismatches": mismatches})
	},
}

func init() {
	recordsConformCmd.Flags().BoolVar(&conformSeedFalse, "seed-false", false, "set null ground-truth booleans to false")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsTemplateCmd)
	recordsCmd.AddCommand(recordsConformCmd)
	recordsCmd.AddCommand(recordsSanityCmd)
	rootCmd.AddCommand(recordsCmd)
}

type mismatchView []evaluate.Mismatch

func (mismatchView) Header() []string {
	return []string{"PDF_ID", "FIELD", "MODEL_OUTPUT", "GROUND_TRUTH"}
}

func (v mismatchView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, m := range v {
		rows = append(rows, []string{m.DocumentID, m.Field, quote(m.ModelOutput), quote(m.GroundTruth)})
	}
	return rows
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}

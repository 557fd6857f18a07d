package main

import (
	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/svcctx"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and export the model prompts",
	Long: `Prompts are embedded in the binary. A file <home>/prompts/<key>.tmpl
overrides the embedded text for that key; page logs record the hash of the
text that was actually used.`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt keys, hashes and whether an override is active",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := svcctx.PromptsFrom(cmd.Context())
		type entry struct {
			Key        string   `json:"key" yaml:"key"`
			Hash       string   `json:"hash" yaml:"hash"`
			IsOverride bool     `json:"is_override" yaml:"is_override"`
			Variables  []string `json:"variables,omitempty" yaml:"variables,omitempty"`
		}
		var list []entry
		for _, p := range resolver.AllEmbedded() {
			r, err := resolver.Resolve(p.Key)
			if err != nil {
				return err
			}
			list = append(list, entry{Key: r.Key, Hash: r.Hash, IsOverride: r.IsOverride, Variables: r.Variables})
		}
		return output.Print(list)
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the resolved text of a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := svcctx.PromptsFrom(cmd.Context()).Resolve(args[0])
		if err != nil {
			return err
		}
		return output.Print(r)
	},
}

var promptsExportForce bool

var promptsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the embedded prompts to the override directory for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		written, err := svcctx.PromptsFrom(ctx).ExportAll(promptsExportForce)
		if err != nil {
			return err
		}
		return output.Print(map[string]any{"dir": svcctx.HomeFrom(ctx).PromptsDir(), "written": written})
	},
}

func init() {
	promptsExportCmd.Flags().BoolVar(&promptsExportForce, "force", false, "overwrite existing overrides")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsExportCmd)
	rootCmd.AddCommand(promptsCmd)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/config"
	"github.com/MrPrayat/DA235X/internal/home"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/svcctx"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, inspect and edit configuration",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write the default config and create the home directory",
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = h.ConfigPath()
		}
		if !configInitForce && fileExists(path) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		return output.Print(map[string]string{"config": path, "home": h.Path()})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the configuration after defaults, the config file, .env and
BESIKTNING_* environment variables are merged. API keys are shown as
written in the file (usually ${ENV_VAR} references), with resolved
literal keys masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs := services(cmd)
		cfg := *svcs.Config.Get()
		masked := make(map[string]config.ProviderCfg, len(cfg.Providers))
		for name, p := range cfg.Providers {
			p.APIKey = maskKey(p.APIKey)
			masked[name] = p
		}
		cfg.Providers = masked
		return output.Print(map[string]any{
			"file":      svcs.Config.ConfigFile(),
			"providers": svcctx.RegistryFrom(cmd.Context()).List(),
			"limits":    svcctx.RegistryFrom(cmd.Context()).RateLimits(),
			"config":    cfg,
		})
	},
}

var configKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List every config key with its default and description",
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := config.DefaultEntries()
		if output.IsText() {
			return output.Print(entryView(entries))
		}
		return output.Print(entries)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one key from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore(services(cmd))
		entries, err := store.GetByPrefix(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if def := config.GetDefault(args[0]); def != nil {
				return output.Print(def)
			}
			return fmt.Errorf("%s is not set in %s", args[0], store.Path())
		}
		if e, ok := entries[args[0]]; ok {
			return output.Print(e)
		}
		list := make([]config.Entry, 0, len(entries))
		for _, k := range config.SortedKeys(entries) {
			list = append(list, entries[k])
		}
		return output.Print(list)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one key in the config file",
	Long: `Set writes a single dotted key to the config file. The value is read as
YAML, so numbers, booleans and [a, b] lists keep their types.

Examples:
  besiktning config set extraction.workers 4
  besiktning config set providers.openai.model gpt-4.1
  besiktning config set evaluation.unambiguous "[CadastralDesignation, InspectionDate]"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore(services(cmd))
		if err := store.Set(args[0], config.ParseValue(args[1])); err != nil {
			return err
		}
		e, err := store.Get(args[0])
		if err != nil {
			return err
		}
		return output.Print(e)
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove one key from the config file so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configStore(services(cmd)).Delete(args[0])
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Write a key's default value into the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.ResetToDefault(configStore(services(cmd)), args[0])
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configResetCmd)
	rootCmd.AddCommand(configCmd)
}

// configStore edits the file the config was read from, or the home config
// when none was found.
func configStore(svcs *svcctx.Services) *config.FileStore {
	path := svcs.Config.ConfigFile()
	if path == "" {
		path = svcs.Home.ConfigPath()
	}
	return config.NewStore(path)
}

func maskKey(key string) string {
	if key == "" || strings.HasPrefix(key, "${") {
		return key
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

type entryView []config.Entry

func (entryView) Header() []string {
	return []string{"KEY", "DEFAULT", "DESCRIPTION"}
}

func (v entryView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, e := range v {
		rows = append(rows, []string{e.Key, fmt.Sprint(e.Value), e.Description})
	}
	return rows
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

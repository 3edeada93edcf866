package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/evbus/internal/config"
)

// flagKeys maps config override flags to their setting keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"telemetry":  "bus.telemetry",
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "", "override log.level")
	cmd.Flags().String("log-format", "", "override log.format")
	cmd.Flags().Bool("telemetry", false, "write spans and metrics to stderr")
}

// loadConfig resolves the config file, EVBUS_ environment and the flags
// added by addConfigFlags.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	loader := config.NewLoader()
	for name, key := range flagKeys {
		if err := loader.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	return loader.Load(path)
}

func newConfigCmd() *cobra.Command {
	var (
		path   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config resolves defaults, the config file, EVBUS_ environment variables
and flags exactly as run does, and prints the result as TOML or YAML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, path)
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg, format)
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "path to a TOML or YAML config file")
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "output format (toml or yaml)")
	addConfigFlags(cmd)
	return cmd
}

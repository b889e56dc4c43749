package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arunlabs/synapse/pkg/config"
	"arunlabs/synapse/pkg/routing"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the gateway configuration",
	Long: `Load the configuration file, apply defaults and environment overrides,
and verify that every route targets a known backend. Nothing is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}
		if _, err := routing.NewTable(cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Configuration valid (%d backends, %d routes)\n",
			len(cfg.Backends), len(cfg.Routes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

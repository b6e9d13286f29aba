package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomis52/nodegraph/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "nodegraph",
		Short: "Run dependency graphs of nodes on a bounded worker pool",
		Long: `nodegraph executes the bundled order fulfilment graphs with the
configured worker pool, failure policies, timing monitor and metrics export.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (defaults apply when omitted)")

	load := func() (config.Config, error) {
		return loadConfig(configPath)
	}
	root.AddCommand(
		newRunCmd(load),
		newValidateCmd(load, &configPath),
		newDotCmd(load),
		newVersionCmd(),
	)
	return root
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"phobos.org.uk/foreman/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fm",
		Short:         "Run coding-agent CLIs behind one interface",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	loadConfig := func() (*config.Config, error) {
		if configPath == "" {
			return config.Default(), nil
		}
		return config.Load(configPath)
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newRunCmd(loadConfig),
		newProvidersCmd(loadConfig),
		newHashTokenCmd(),
	)
	return root
}

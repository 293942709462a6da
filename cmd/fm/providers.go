package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/provider"
)

func newProvidersCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and whether they can run here",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry := provider.NewRegistry(provider.OptionsFromConfig(cfg, logging.Discard("fm"), nil))

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tAVAILABLE\tRESUME\tDEFAULT")
			for _, t := range registry.Types() {
				p := registry.Get(t)
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.AvailabilityTimeout)
				available := p.IsAvailable(ctx)
				cancel()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t, yesNo(available),
					yesNo(provider.SupportsResume(p)), yesNo(string(t) == cfg.DefaultProvider))
			}
			return tw.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/fallback"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/metrics"
	"phobos.org.uk/foreman/internal/provider"
)

type runFlags struct {
	provider     string
	mode         string
	model        string
	workDir      string
	sessionID    string
	logID        string
	allowedTools []string
	quiet        bool
	jsonOut      bool
}

func newRunCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [flags] PROMPT",
		Short: "Run one invocation, resuming a session when given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			typName := f.provider
			if typName == "" {
				typName = cfg.DefaultProvider
			}
			typ, err := provider.ParseType(typName)
			if err != nil {
				return err
			}

			log := logging.New(logging.Config{
				Output:    cmd.ErrOrStderr(),
				Level:     logging.ParseLevel(cfg.LogLevel),
				Component: "fm",
			})
			if f.quiet {
				log.SetLevel(logging.LevelError)
			}
			registry := provider.NewRegistry(provider.OptionsFromConfig(cfg, log, metrics.Default()))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var stream io.Writer = cmd.ErrOrStderr()
			if f.quiet {
				stream = io.Discard
			}
			req := provider.Request{
				Prompt:       args[0],
				WorkDir:      f.workDir,
				Mode:         provider.Mode(f.mode),
				Model:        f.model,
				SessionID:    f.sessionID,
				AllowedTools: f.allowedTools,
				LogID:        f.logID,
				OnChunk: func(c provider.Chunk) {
					if c.Kind == provider.KindRaw && c.Stream == provider.StreamStdout {
						io.WriteString(stream, c.Text)
					}
				},
			}

			out := fallback.New(log).Run(ctx, registry.Get(typ), req)
			if err := printOutcome(cmd.OutOrStdout(), out, f.jsonOut); err != nil {
				return err
			}
			if !out.Result.Success {
				return fmt.Errorf("%s", out.Result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "Provider type (default from config)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", string(provider.ModeCode), "Mode: plan, code or analyze")
	cmd.Flags().StringVar(&f.model, "model", "", "Model override")
	cmd.Flags().StringVarP(&f.workDir, "dir", "C", "", "Working directory for the agent")
	cmd.Flags().StringVarP(&f.sessionID, "session", "s", "", "Session to resume")
	cmd.Flags().StringVar(&f.logID, "log-id", "", "Session log grouping id")
	cmd.Flags().StringSliceVar(&f.allowedTools, "allowed-tools", nil, "Tools the agent may use")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not stream raw output")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print the outcome as JSON")
	return cmd
}

func printOutcome(w io.Writer, out fallback.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	res := out.Result
	fmt.Fprintln(w)
	if res.Output != "" {
		fmt.Fprintln(w, res.Output)
	}
	if res.SessionID != "" {
		fmt.Fprintf(w, "session: %s\n", res.SessionID)
	}
	if out.FellBack {
		fmt.Fprintln(w, "note: prior session could not be resumed; started fresh")
	}
	if res.EndedWithQuestion {
		fmt.Fprintln(w, "note: agent is waiting for an answer")
	}
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"phobos.org.uk/foreman/internal/service"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [TOKEN]",
		Short: "Print an Argon2id hash for the token_hash config key",
		Long:  "Hashes TOKEN, or the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading token from stdin: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			hash, err := service.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

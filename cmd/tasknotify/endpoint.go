package main

import (
	"fmt"

	"github.com/rmacdonaldsmith/tasknotify-go/pkg/endpoint"
	"github.com/spf13/cobra"
)

func newEndpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Print the resolved broker endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := endpoint.Resolve(cfg.Origin, cfg.Hub)
			if err != nil {
				return fmt.Errorf("failed to resolve endpoint: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a single memory unit by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			unit, err := b.svc.Get(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(unit, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}

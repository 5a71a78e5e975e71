package cmd

import (
	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var hard bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory unit (soft by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			if err := b.svc.Delete(ctx, args[0], hard); err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if hard {
				w.Successf("hard-deleted %s", args[0])
			} else {
				w.Successf("soft-deleted %s", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "remove the row and all index entries instead of soft-deleting")
	return cmd
}

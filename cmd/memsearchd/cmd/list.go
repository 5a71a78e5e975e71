package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/output"
)

func newListCmd() *cobra.Command {
	var (
		owner          string
		session        string
		memType        string
		limit          int
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumerate an owner's memories newest first, without ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			filter := memory.Filter{
				OwnerKey:       owner,
				SessionKey:     session,
				IncludeDeleted: includeDeleted,
			}
			if memType != "" {
				t := memory.Type(strings.ToUpper(memType))
				if !memory.ValidType(t) {
					return fmt.Errorf("unknown memory type %q", memType)
				}
				filter.Types = []memory.Type{t}
			}

			units, err := b.svc.List(ctx, filter, limit)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(units) == 0 {
				w.Noticef("no memories")
				return nil
			}
			w.Units(units)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner key (required)")
	cmd.Flags().StringVar(&session, "session", "", "session key filter")
	cmd.Flags().StringVar(&memType, "type", "", "memory type filter (episodic|semantic|procedural|fact)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum units to list (0 = all)")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include soft-deleted units")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

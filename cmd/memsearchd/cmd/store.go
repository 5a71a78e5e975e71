package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/output"
	"github.com/memsearch/memsearch/internal/service"
)

func newStoreCmd() *cobra.Command {
	var (
		owner      string
		session    string
		memType    string
		importance float32
		topics     string
	)

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Store a new memory unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			req := service.StoreRequest{
				OwnerKey:   owner,
				SessionKey: session,
				Content:    args[0],
				Type:       memory.Type(strings.ToUpper(memType)),
				Importance: importance,
			}
			if topics != "" {
				req.Topics = strings.Split(topics, ",")
			}

			result, err := b.svc.Store(ctx, req)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if result.Matched {
				w.Noticef("matched existing unit (%s): %s", result.MatchKind, result.Unit.ID)
			} else {
				w.Successf("stored %s", result.Unit.ID)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Unit.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner key (required)")
	cmd.Flags().StringVar(&session, "session", "", "session key")
	cmd.Flags().StringVar(&memType, "type", string(memory.TypeSemantic), "memory type: episodic|semantic|procedural|fact")
	cmd.Flags().Float32Var(&importance, "importance", 0.5, "importance in [0,1]")
	cmd.Flags().StringVar(&topics, "topics", "", "comma-separated topics")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

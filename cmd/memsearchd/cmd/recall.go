package cmd

import (
	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/output"
	"github.com/memsearch/memsearch/internal/service"
)

func newRecallCmd() *cobra.Command {
	var (
		owner          string
		session        string
		limit          int
		useMMR         bool
		mmrLambda      float64
		explain        bool
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall the most relevant memories for a free-text query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			results, err := b.svc.Recall(ctx, service.RecallRequest{
				Query:          args[0],
				OwnerKey:       owner,
				SessionKey:     session,
				Limit:          limit,
				UseMMR:         useMMR,
				MMRLambda:      mmrLambda,
				Explain:        explain,
				IncludeDeleted: includeDeleted,
			})
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(results) == 0 {
				w.Noticef("no matches")
				return nil
			}
			w.Results(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner key (required)")
	cmd.Flags().StringVar(&session, "session", "", "session key filter")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().BoolVar(&useMMR, "mmr", false, "apply MMR diversity reranking")
	cmd.Flags().Float64Var(&mmrLambda, "mmr-lambda", 0.5, "MMR lambda in [0,1]")
	cmd.Flags().BoolVar(&explain, "explain", false, "attach a per-factor score breakdown")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include soft-deleted units")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

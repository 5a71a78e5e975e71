package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/logging"
)

// newLogsCmd views and tails memsearchd's JSON debug log.
func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View memsearchd debug logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logging.FindLogFile(logFile)
			if err != nil {
				return err
			}

			view := logging.View{MinLevel: slog.LevelDebug}
			if level != "" {
				view.MinLevel = logging.ParseLevel(level)
			}
			if filter != "" {
				view.Match, err = regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", path)

			if follow {
				ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer cancel()
				err := logging.Follow(ctx, path, view, func(e logging.Entry) {
					fmt.Fprintln(cmd.OutOrStdout(), e.Format())
				})
				if ctx.Err() != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "\n---\nStopped.")
					return nil
				}
				return err
			}

			entries, err := logging.Tail(path, lines, view)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Format())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "minimum level to show (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "only show lines matching this regex (e.g. \"component\":\"store\")")
	cmd.Flags().StringVar(&logFile, "file", "", "custom log file path")

	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the result",
		Long: `Probe the remote once, run a single push/pull cycle and print the
result as JSON. Exits non-zero if the cycle failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			a.CheckConnectivity(ctx)

			result, syncErr := a.Engine.Sync(ctx)
			if result != nil {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			}
			return syncErr
		},
	}

	return cmd
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the local operation queue",
	}

	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueStatsCommand(rootOpts))
	cmd.AddCommand(newQueueShowCommand(rootOpts))

	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List queued operations by status, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := queue.Status(status)
			if !st.Valid() {
				return apperrors.New(apperrors.ErrInvalid, "status must be pending, processed or failed")
			}

			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			return writeJSON(cmd.OutOrStdout(), a.Queue.ListByStatus(cmd.Context(), st, limit))
		},
	}

	cmd.Flags().StringVar(&status, "status", string(queue.StatusPending), "pending|processed|failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}

func newQueueStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Print queue counts by status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			return writeJSON(cmd.OutOrStdout(), a.Queue.GetStats(cmd.Context()))
		},
	}

	return cmd
}

func newQueueShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         "Print one queued operation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := uuid.Validate(args[0]); err != nil {
				return apperrors.Wrap(apperrors.ErrInvalid, "malformed operation id", err)
			}
			item, ok := a.Queue.GetOperation(cmd.Context(), args[0])
			if !ok {
				return apperrors.New(apperrors.ErrNotFound, "operation not found: "+args[0])
			}
			return writeJSON(cmd.OutOrStdout(), item)
		},
	}

	return cmd
}

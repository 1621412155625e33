package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ryanmac/youtube-extraction-service/internal/app"
)

var (
	queryChannels []string
	queryLimit    int
	queryContext  int
	recentLimit   int
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Find transcript chunks relevant to a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			chunks, err := a.Retrieval.RetrieveRelevant(ctx, args[0], queryChannels, queryLimit, queryContext)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chunks)
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent <channel-id>",
	Short: "List indexed chunks of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			segments, err := a.Retrieval.RetrieveRecent(ctx, args[0], recentLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), segments)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Retrieval.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <channel-url|@handle|channel-id>",
	Short: "Show channel metadata and index counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			info, err := a.Channels.Info(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		})
	},
}

func init() {
	rootCmd.AddCommand(queryCmd, recentCmd, statsCmd, infoCmd)

	queryCmd.Flags().StringSliceVarP(&queryChannels, "channel", "c", nil, "channel id to search (repeatable)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "k", 5, "number of matches")
	queryCmd.Flags().IntVar(&queryContext, "context", 1, "neighbouring chunks on each side")
	_ = queryCmd.MarkFlagRequired("channel")

	recentCmd.Flags().IntVarP(&recentLimit, "limit", "k", 5, "number of chunks")
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ryanmac/youtube-extraction-service/internal/app"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/service"
)

var (
	channelLimit   int
	channelNoBar   bool
	channelRefresh bool
)

var channelCmd = &cobra.Command{
	Use:   "channel <channel-url|@handle|channel-id>",
	Short: "Ingest the latest uploads of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return runChannel(ctx, cmd, a, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(channelCmd)
	channelCmd.Flags().IntVarP(&channelLimit, "limit", "n", service.DefaultVideoLimit, "number of latest videos to ingest")
	channelCmd.Flags().BoolVar(&channelNoBar, "no-progress", false, "log progress instead of drawing a bar")
	channelCmd.Flags().BoolVar(&channelRefresh, "refresh-metadata", false, "refetch channel metadata before ingesting")
}

func runChannel(ctx context.Context, cmd *cobra.Command, a *app.App, ref string) error {
	if channelRefresh {
		if _, err := a.Channels.RefreshMetadata(ctx, ref); err != nil {
			return err
		}
	}

	var observer service.RunObserver = logObserver{log: log}
	if !channelNoBar {
		observer = newBarObserver(cmd.ErrOrStderr())
	}

	result, err := a.Ingest.Run(ctx, ref, channelLimit, observer)
	if err != nil {
		log.WithError(err).WithField("channel_ref", ref).Error("Ingestion failed")
		return err
	}

	log.WithFields(logger.Fields{
		"channel_id": result.ChannelID,
		"total":      result.TotalVideos,
		"ingested":   result.IngestedVideos,
		"skipped":    result.SkippedVideos,
		"records":    result.Records,
	}).Info("Ingestion completed")
	return printJSON(cmd.OutOrStdout(), result)
}

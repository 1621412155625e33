// Command ingest runs channel ingestion and index queries from the shell,
// without going through the HTTP API or the job queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ryanmac/youtube-extraction-service/internal/app"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest YouTube channel transcripts and query the vector index",
	Long: `ingest fetches transcripts for a channel's uploads, embeds them and stores
them in the vector index. It can also query what has been indexed.

Example usage:
  ingest channel @somecreator --limit 10
  ingest query "how do I tune a guitar" --channel UCxxxx --limit 3
  ingest recent UCxxxx --limit 5
  ingest stats`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log = app.NewLogger(cfg, "youtube-extraction-ingest")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
}

// withApp builds the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

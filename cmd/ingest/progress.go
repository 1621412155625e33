package main

import (
	"context"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// barObserver draws ingestion progress as a percentage bar.
type barObserver struct {
	bar  *progressbar.ProgressBar
	last int
}

func newBarObserver(w io.Writer) *barObserver {
	return &barObserver{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Resolving channel[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(w, "\n")
			}),
		),
	}
}

func (o *barObserver) ChannelResolved(_ context.Context, channelID string, total int) {
	o.bar.Describe("[cyan]" + channelID + "[reset]")
}

func (o *barObserver) Progress(_ context.Context, percent float64, _ int) {
	p := int(percent)
	if p > 100 {
		p = 100
	}
	if p <= o.last && p < 100 {
		return
	}
	o.last = p
	_ = o.bar.Set(p)
}

// logObserver reports milestones through the logger, for non-interactive runs.
type logObserver struct {
	log *logger.Logger
}

func (o logObserver) ChannelResolved(_ context.Context, channelID string, total int) {
	o.log.WithFields(logger.Fields{"channel_id": channelID, "total_videos": total}).Info("Channel resolved")
}

func (o logObserver) Progress(_ context.Context, percent float64, processed int) {
	o.log.WithFields(logger.Fields{"progress": percent, "processed_videos": processed}).Debug("Ingestion progress")
}

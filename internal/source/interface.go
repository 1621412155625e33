package source

import (
	"context"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// Catalog resolves channels and lists their uploads.
type Catalog interface {
	// ResolveHandle maps a channel handle (the part after "@") to a channel id.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - handle: channel handle without the leading "@".
	// Returns:
	//   - string: channel id.
	//   - error: wraps domain.ErrNotFound when no channel matches.
	ResolveHandle(ctx context.Context, handle string) (string, error)

	// ChannelMetadata returns the catalog resource for a channel.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - channelID: channel id.
	// Returns:
	//   - domain.ChannelMetadata: resource parts keyed by part name.
	//   - error: wraps domain.ErrNotFound for unknown channels.
	ChannelMetadata(ctx context.Context, channelID string) (domain.ChannelMetadata, error)

	// ListVideoIDs returns up to limit video ids in catalog order.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - channelID: channel id.
	//   - limit: maximum number of ids to return.
	// Returns:
	//   - []string: video ids, most recent first.
	//   - error: non-nil if listing fails.
	ListVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error)
}

// TranscriptSource fetches the spoken text of a video.
type TranscriptSource interface {
	// Transcript returns the transcript text for videoID.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - videoID: video id.
	// Returns:
	//   - string: segment texts joined by single spaces.
	//   - bool: false when the video has no transcript.
	//   - error: non-nil on transport failures.
	Transcript(ctx context.Context, videoID string) (string, bool, error)
}

package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

const (
	defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"
	channelParts          = "snippet,statistics,topicDetails,status,brandingSettings,localizations,contentDetails"
	playlistPageSize      = 50
)

var (
	handlePattern      = regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/@([^/\n?]+)`)
	channelPathPattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/channel/([^/\n?]+)`)
)

// ExtractHandle returns the handle from a youtube.com/@handle URL.
func ExtractHandle(channelURL string) (string, bool) {
	m := handlePattern.FindStringSubmatch(channelURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseChannelRef accepts a bare channel id, an "@handle", a
// youtube.com/@handle URL or a youtube.com/channel/{id} URL. Exactly one of
// channelID and handle is set on success.
func ParseChannelRef(ref string) (channelID, handle string, err error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", "", fmt.Errorf("%w: empty channel reference", domain.ErrValidation)
	case strings.HasPrefix(ref, "@") && len(ref) > 1:
		return "", ref[1:], nil
	}
	if h, ok := ExtractHandle(ref); ok {
		return "", h, nil
	}
	if m := channelPathPattern.FindStringSubmatch(ref); m != nil {
		return m[1], "", nil
	}
	if strings.ContainsAny(ref, "/?@ \t") {
		return "", "", fmt.Errorf("%w: unrecognized channel reference %q", domain.ErrValidation, ref)
	}
	return ref, "", nil
}

// YouTubeCatalog talks to the YouTube Data API v3.
type YouTubeCatalog struct {
	client *resty.Client
}

// NewYouTubeCatalog creates a catalog client from cfg.
func NewYouTubeCatalog(cfg *config.YouTubeConfig) *YouTubeCatalog {
	base := cfg.BaseURL
	if base == "" {
		base = defaultYouTubeBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(base, "/")).
		SetQueryParam("key", cfg.APIKey).
		SetRetryCount(2).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &YouTubeCatalog{client: client}
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *YouTubeCatalog) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("youtube %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return domain.Wrap(domain.ErrNotFound, "youtube "+path, fmt.Errorf("%s", apiErr.Error.Message))
	case resp.IsError():
		return fmt.Errorf("youtube %s: status %d: %s", path, resp.StatusCode(), apiErr.Error.Message)
	}
	return nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
	} `json:"items"`
}

func (c *YouTubeCatalog) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var resp searchResponse
	err := c.get(ctx, "/search", map[string]string{
		"part": "snippet",
		"q":    handle,
		"type": "channel",
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ID.ChannelID == "" {
		return "", fmt.Errorf("channel handle %q: %w", handle, domain.ErrNotFound)
	}
	return resp.Items[0].ID.ChannelID, nil
}

type channelsResponse struct {
	Items []domain.ChannelMetadata `json:"items"`
}

func (c *YouTubeCatalog) ChannelMetadata(ctx context.Context, channelID string) (domain.ChannelMetadata, error) {
	var resp channelsResponse
	err := c.get(ctx, "/channels", map[string]string{
		"id":   channelID,
		"part": channelParts,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
	}
	return resp.Items[0], nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// uploadsPlaylist derives the uploads playlist from a UC-prefixed channel id,
// falling back to the channel resource for anything else.
func (c *YouTubeCatalog) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if strings.HasPrefix(channelID, "UC") && len(channelID) > 2 {
		return "UU" + channelID[2:], nil
	}
	meta, err := c.ChannelMetadata(ctx, channelID)
	if err != nil {
		return "", err
	}
	id := meta.UploadsPlaylistID()
	if id == "" {
		return "", fmt.Errorf("channel %s has no uploads playlist: %w", channelID, domain.ErrNotFound)
	}
	return id, nil
}

func (c *YouTubeCatalog) ListVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	playlistID, err := c.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, limit)
	pageToken := ""
	for len(ids) < limit {
		params := map[string]string{
			"part":       "contentDetails",
			"playlistId": playlistID,
			"maxResults": strconv.Itoa(min(playlistPageSize, limit-len(ids))),
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}
		var resp playlistItemsResponse
		if err := c.get(ctx, "/playlistItems", params, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if item.ContentDetails.VideoID == "" {
				continue
			}
			ids = append(ids, item.ContentDetails.VideoID)
			if len(ids) == limit {
				break
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	logger.With(logger.Fields{
		logger.FieldChannelID: channelID,
		logger.FieldComponent: "youtube_catalog",
	}).WithCount(len(ids)).Debug(ctx, "Listed channel uploads")
	return ids, nil
}

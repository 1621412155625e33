package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// HTTPTranscripts fetches transcripts from a caption service exposing
// GET /transcripts/{videoId}.
type HTTPTranscripts struct {
	client    *resty.Client
	languages string
}

func NewHTTPTranscripts(cfg *config.TranscriptConfig) *HTTPTranscripts {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetRetryCount(2).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &HTTPTranscripts{
		client:    client,
		languages: strings.Join(cfg.Languages, ","),
	}
}

type transcriptResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text     string  `json:"text"`
		Start    float64 `json:"start"`
		Duration float64 `json:"duration"`
	} `json:"segments"`
}

// joined returns the text of all segments separated by single spaces.
func (r transcriptResponse) joined() string {
	if len(r.Segments) == 0 {
		return strings.TrimSpace(r.Text)
	}
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (t *HTTPTranscripts) Transcript(ctx context.Context, videoID string) (string, bool, error) {
	var body transcriptResponse
	req := t.client.R().
		SetContext(ctx).
		SetPathParam("videoId", videoID).
		SetResult(&body)
	if t.languages != "" {
		req.SetQueryParam("languages", t.languages)
	}

	resp, err := req.Get("/transcripts/{videoId}")
	if err != nil {
		return "", false, fmt.Errorf("fetch transcript %s: %w", videoID, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		logger.CtxInfo(ctx, "No transcript available for video %s", videoID)
		return "", false, nil
	case resp.IsError():
		return "", false, fmt.Errorf("fetch transcript %s: status %d", videoID, resp.StatusCode())
	}

	text := body.joined()
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

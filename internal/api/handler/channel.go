package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// ChannelService serves channel metadata and index summaries.
type ChannelService interface {
	Info(ctx context.Context, ref string) (*domain.ChannelInfo, error)
	RefreshMetadata(ctx context.Context, ref string) (domain.ChannelMetadata, error)
}

// ChannelHandler handles channel endpoints.
type ChannelHandler struct {
	channels ChannelService
}

func NewChannelHandler(channels ChannelService) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

func channelRef(c *gin.Context) (string, bool) {
	ref := strings.TrimSpace(c.Query("channel_url"))
	if ref == "" {
		ref = strings.TrimSpace(c.Query("channel_id"))
	}
	if ref == "" {
		badRequest(c, "Query parameter 'channel_url' is required")
		return "", false
	}
	return ref, true
}

// ChannelInfo handles GET /channel_info.
func (h *ChannelHandler) ChannelInfo(c *gin.Context) {
	ref, ok := channelRef(c)
	if !ok {
		return
	}
	info, err := h.channels.Info(c.Request.Context(), ref)
	if err != nil {
		writeError(c, "Get channel info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// RefreshMetadata handles POST /refresh_channel_metadata.
func (h *ChannelHandler) RefreshMetadata(c *gin.Context) {
	ref, ok := channelRef(c)
	if !ok {
		return
	}
	meta, err := h.channels.RefreshMetadata(c.Request.Context(), ref)
	if err != nil {
		writeError(c, "Refresh channel metadata", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Channel metadata refreshed successfully",
		"metadata": meta,
	})
}

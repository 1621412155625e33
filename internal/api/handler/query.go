package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// Retriever answers queries over the index.
type Retriever interface {
	RetrieveRelevant(ctx context.Context, query string, channelIDs []string, limit, contextWindow int) ([]domain.RelevantChunk, error)
	RetrieveRecent(ctx context.Context, channelID string, limit int) ([]domain.Segment, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// QueryHandler handles retrieval endpoints.
type QueryHandler struct {
	retriever Retriever
}

func NewQueryHandler(retriever Retriever) *QueryHandler {
	return &QueryHandler{retriever: retriever}
}

// intQuery parses an optional bounded integer query parameter.
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		badRequest(c, "Query parameter '"+name+"' must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		return 0, false
	}
	return n, true
}

// channelIDs accepts repeated or comma-separated channel_id parameters.
func channelIDs(c *gin.Context) []string {
	var ids []string
	for _, v := range c.QueryArray("channel_id") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// RelevantChunks handles GET /relevant_chunks.
func (h *QueryHandler) RelevantChunks(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		badRequest(c, "Query parameter 'query' is required")
		return
	}
	ids := channelIDs(c)
	if len(ids) == 0 {
		badRequest(c, "Query parameter 'channel_id' is required")
		return
	}
	limit, ok := intQuery(c, "chunk_limit", 5, 1, 100)
	if !ok {
		return
	}
	window, ok := intQuery(c, "context_window", 1, 0, 10)
	if !ok {
		return
	}

	chunks, err := h.retriever.RetrieveRelevant(c.Request.Context(), query, ids, limit, window)
	if err != nil {
		writeError(c, "Retrieve relevant chunks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// RecentChunks handles GET /recent_chunks.
func (h *QueryHandler) RecentChunks(c *gin.Context) {
	channelID := strings.TrimSpace(c.Query("channel_id"))
	if channelID == "" {
		badRequest(c, "Query parameter 'channel_id' is required")
		return
	}
	limit, ok := intQuery(c, "limit", 5, 1, 100)
	if !ok {
		return
	}

	segments, err := h.retriever.RetrieveRecent(c.Request.Context(), channelID, limit)
	if err != nil {
		writeError(c, "Retrieve recent chunks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": segments})
}

// Stats handles GET /stats.
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.retriever.Stats(c.Request.Context())
	if err != nil {
		writeError(c, "Describe index", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

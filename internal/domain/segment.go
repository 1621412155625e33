package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator joins a video id and a segment index into a record key.
const KeySeparator = "_"

// Segment is one bounded chunk of a video transcript.
type Segment struct {
	ChannelID string `json:"channel_id"`
	VideoID   string `json:"video_id"`
	Index     int    `json:"chunk_index"`
	Text      string `json:"text"`
}

// Key returns the record key of the segment.
func (s Segment) Key() string {
	return SegmentKey(s.VideoID, s.Index)
}

// SegmentKey formats the composite key "{videoId}_{index}".
func SegmentKey(videoID string, index int) string {
	return videoID + KeySeparator + strconv.Itoa(index)
}

// ParseSegmentKey splits a record key on its last separator. Video ids may
// themselves contain underscores, so only the trailing numeric suffix is
// taken as the index.
func ParseSegmentKey(key string) (string, int, error) {
	idx := strings.LastIndex(key, KeySeparator)
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, fmt.Errorf("%w: malformed segment key %q", ErrValidation, key)
	}
	n, err := strconv.Atoi(key[idx+1:])
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: malformed segment index in key %q", ErrValidation, key)
	}
	return key[:idx], n, nil
}

// Metadata is the payload stored next to each embedding.
type Metadata struct {
	ChannelID  string `json:"channel_id"`
	VideoID    string `json:"video_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Record is the persisted unit of the vector index.
type Record struct {
	Key       string    `json:"id"`
	Embedding []float32 `json:"values"`
	Metadata  Metadata  `json:"metadata"`
}

// NewRecord pairs a segment with its embedding.
func NewRecord(seg Segment, embedding []float32) Record {
	return Record{
		Key:       seg.Key(),
		Embedding: embedding,
		Metadata: Metadata{
			ChannelID:  seg.ChannelID,
			VideoID:    seg.VideoID,
			ChunkIndex: seg.Index,
			Text:       seg.Text,
		},
	}
}

// Match is a similarity query hit, ordered by descending score.
type Match struct {
	Key      string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Position resolves the video id and index of a match, preferring the stored
// metadata and falling back to the key encoding.
func (m Match) Position() (string, int, error) {
	if m.Metadata.VideoID != "" && m.Key == SegmentKey(m.Metadata.VideoID, m.Metadata.ChunkIndex) {
		return m.Metadata.VideoID, m.Metadata.ChunkIndex, nil
	}
	return ParseSegmentKey(m.Key)
}

// RelevantChunk is a match expanded with its neighbouring segments.
type RelevantChunk struct {
	MainChunk     string   `json:"main_chunk"`
	ContextBefore []string `json:"context_before"`
	ContextAfter  []string `json:"context_after"`
	Score         float32  `json:"score"`
	VideoID       string   `json:"video_id"`
	ChunkIndex    int      `json:"chunk_index"`
}

// Filter restricts a query by metadata. Empty fields do not constrain.
type Filter struct {
	ChannelIDs []string
	VideoID    string
}

// IndexStats summarizes the vector index.
type IndexStats struct {
	TotalRecordCount uint64 `json:"total_vector_count"`
	Collection       string `json:"collection"`
	Dimension        int    `json:"dimension"`
}

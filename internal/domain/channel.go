package domain

import "encoding/json"

// ChannelMetadata is the raw catalog resource for a channel, kept as JSON so
// that every requested part survives the cache round trip.
type ChannelMetadata map[string]json.RawMessage

// CustomURL returns snippet.customUrl, if present.
func (m ChannelMetadata) CustomURL() string {
	var snippet struct {
		CustomURL string `json:"customUrl"`
	}
	if raw, ok := m["snippet"]; ok {
		_ = json.Unmarshal(raw, &snippet)
	}
	return snippet.CustomURL
}

// UploadsPlaylistID returns contentDetails.relatedPlaylists.uploads.
func (m ChannelMetadata) UploadsPlaylistID() string {
	var details struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	}
	if raw, ok := m["contentDetails"]; ok {
		_ = json.Unmarshal(raw, &details)
	}
	return details.RelatedPlaylists.Uploads
}

// ChannelInfo summarizes what the index holds for a channel.
type ChannelInfo struct {
	ChannelID        string          `json:"channel_id"`
	UniqueVideoCount int             `json:"unique_video_count"`
	TotalEmbeddings  uint64          `json:"total_embeddings"`
	Metadata         ChannelMetadata `json:"metadata"`
}

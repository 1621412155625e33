package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/storage"
)

// ArchivedTranscripts serves transcripts from object storage and falls back
// to the wrapped source, archiving whatever it fetches.
type ArchivedTranscripts struct {
	inner  TranscriptSource
	store  storage.ObjectStorage
	prefix string
}

func NewArchivedTranscripts(inner TranscriptSource, store storage.ObjectStorage, prefix string) *ArchivedTranscripts {
	if prefix == "" {
		prefix = "transcripts"
	}
	return &ArchivedTranscripts{inner: inner, store: store, prefix: prefix}
}

// ObjectKey returns the storage key of a video's transcript.
func (a *ArchivedTranscripts) ObjectKey(videoID string) string {
	return path.Join(a.prefix, videoID+".txt")
}

func (a *ArchivedTranscripts) Transcript(ctx context.Context, videoID string) (string, bool, error) {
	key := a.ObjectKey(videoID)
	if text, ok := a.load(ctx, key); ok {
		return text, true, nil
	}

	text, ok, err := a.inner.Transcript(ctx, videoID)
	if err != nil || !ok {
		return text, ok, err
	}

	data := []byte(text)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "text/plain; charset=utf-8"); err != nil {
		logger.CtxWarn(ctx, "Failed to archive transcript %s: %v", key, err)
	}
	return text, true, nil
}

// load reads an archived transcript. Storage errors degrade to a miss.
func (a *ArchivedTranscripts) load(ctx context.Context, key string) (string, bool) {
	rc, err := a.store.Download(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			logger.CtxWarn(ctx, "Failed to read archived transcript %s: %v", key, err)
		}
		return "", false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to read archived transcript %s: %v", key, err)
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

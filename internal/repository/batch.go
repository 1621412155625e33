package repository

import (
	"encoding/json"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// DefaultMaxBatchBytes is the serialized-size budget of one upsert request.
const DefaultMaxBatchBytes = 1 << 20

// estimateRecordSize returns the JSON size of (key, embedding, metadata).
func estimateRecordSize(rec domain.Record) int {
	b, err := json.Marshal(rec)
	if err != nil {
		return 0
	}
	return len(b)
}

// packBatches greedily groups records so that no batch exceeds budget bytes.
// A record larger than budget on its own is placed alone in its batch.
func packBatches(records []domain.Record, budget int, size func(domain.Record) int) ([][]domain.Record, []int) {
	var (
		batches [][]domain.Record
		sizes   []int
		current []domain.Record
		used    int
	)
	for _, rec := range records {
		n := size(rec)
		if len(current) > 0 && used+n > budget {
			batches = append(batches, current)
			sizes = append(sizes, used)
			current = nil
			used = 0
		}
		current = append(current, rec)
		used += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
		sizes = append(sizes, used)
	}
	return batches, sizes
}

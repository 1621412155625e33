package domain

import "errors"

var (
	// ErrNotFound marks an absent channel, video, transcript or job.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrEmbeddingFailed is returned once embedding retries are exhausted.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrUpsertFailed is returned once a batch flush exhausts its retries.
	ErrUpsertFailed = errors.New("upsert failed")
)

// KindError attaches a sentinel kind to an underlying cause so that
// errors.Is matches either of them.
type KindError struct {
	Kind  error
	Op    string
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *KindError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Wrap returns a KindError, or nil when cause is nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &KindError{Kind: kind, Op: op, Cause: cause}
}

package service

import "context"

// ProgressReporter receives completed/total counts from long-running work.
type ProgressReporter interface {
	Report(ctx context.Context, completed, total int)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ctx context.Context, completed, total int)

func (f ProgressFunc) Report(ctx context.Context, completed, total int) {
	f(ctx, completed, total)
}

// Percent returns completed/total*100, clamped to [0, 100].
func Percent(completed, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(completed) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func report(ctx context.Context, r ProgressReporter, completed, total int) {
	if r != nil {
		r.Report(ctx, completed, total)
	}
}

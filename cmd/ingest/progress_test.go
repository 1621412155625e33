package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarObserverIgnoresRegressions(t *testing.T) {
	var buf bytes.Buffer
	o := newBarObserver(&buf)
	ctx := context.Background()

	o.ChannelResolved(ctx, "UC123", 4)
	o.Progress(ctx, 25, 1)
	o.Progress(ctx, 10, 1)
	assert.Equal(t, 25, o.last)
	assert.InDelta(t, 0.25, o.bar.State().CurrentPercent, 0.001)

	o.Progress(ctx, 140, 4)
	assert.Equal(t, 100, o.last)
	assert.True(t, o.bar.IsFinished())
}

package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCoversEveryIndex(t *testing.T) {
	var counter int64
	For(1000, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, DefaultConfig())

	assert.Equal(t, int64(1000), counter)
}

func TestForSequentialFallback(t *testing.T) {
	seen := make([]bool, 100)
	For(100, func(i int) {
		seen[i] = true
	}, Config{Enabled: false})

	for i, ok := range seen {
		assert.True(t, ok, "index %d", i)
	}
}

func TestForSmallInputRunsInline(t *testing.T) {
	// Below the chunk floor everything runs on the calling goroutine,
	// so unsynchronized writes are safe.
	seen := make([]bool, 8)
	For(8, func(i int) {
		seen[i] = true
	}, DefaultConfig())

	for i, ok := range seen {
		assert.True(t, ok, "index %d", i)
	}
}

func TestForZeroLength(t *testing.T) {
	called := false
	For(0, func(_ int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

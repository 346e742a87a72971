package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCaptureLogger(t *testing.T) {
	logger, logs := NewCaptureLogger(t)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug("worker done", slog.Int("worker", i))
		}()
	}
	wg.Wait()

	assert.True(t, logs.Contains("msg=\"worker done\" worker=3"))
	assert.Equal(t, 4, countLines(logs.String()))
	assert.False(t, logs.Contains("level=ERROR"))
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

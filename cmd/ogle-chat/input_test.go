// ABOUTME: Tests for the context-aware line reader.
// ABOUTME: Covers ordering, EOF, and reuse after a cancelled read.

package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineScanner_ReadsLinesInOrder(t *testing.T) {
	s := newSignalAwareScanner(strings.NewReader("first\nsecond\n"))

	line, err := s.Line(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = s.Line(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = s.Line(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineScanner_CancelUnblocksRead(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := newSignalAwareScanner(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Line(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Line did not return on cancellation")
	}
}

func TestLineScanner_RetryAfterCancelGetsNextLine(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := newSignalAwareScanner(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Line(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The abandoned call leaves no competing reader behind; the next call
	// receives the line that arrives afterwards.
	go func() {
		_, _ = w.Write([]byte("hello\n"))
	}()

	line, err := s.Line(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
}

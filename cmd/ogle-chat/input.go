// ABOUTME: Context-aware line reader for the interactive loop.
// ABOUTME: Lets Ctrl+C interrupt a blocking stdin read.

package main

import (
	"bufio"
	"context"
	"io"
)

// lineScanner reads lines on a single background goroutine so callers can
// select between input and context cancellation. One goroutine for the
// scanner's lifetime keeps the underlying reader single-owner: a call
// abandoned by cancellation never races a later call for the same line.
type lineScanner struct {
	lines chan string
	errs  chan error
}

func newSignalAwareScanner(r io.Reader) *lineScanner {
	s := &lineScanner{
		lines: make(chan string),
		errs:  make(chan error, 1),
	}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			s.errs <- err
			return
		}
		s.errs <- io.EOF
	}()
	return s
}

// Line returns the next input line, io.EOF at end of input, or
// context.Canceled when ctx ends first. After a cancellation the pending
// line, if any, is returned by the next call.
func (s *lineScanner) Line(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", context.Canceled
	case err := <-s.errs:
		return "", err
	case line := <-s.lines:
		return line, nil
	}
}

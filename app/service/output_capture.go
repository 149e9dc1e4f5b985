package service

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// OutputCapture keeps the tail of outcome log lines reported by a job run, used as the body
// of notification emails. Lines beyond the limit push the oldest out, the number of dropped
// lines is reported on top of the output.
type OutputCapture struct {
	maxLines int
	lines    []string
	dropped  int
	mu       sync.Mutex
}

// NewOutputCapture makes io.Writer keeping last maxLines lines, 0 disables capture
func NewOutputCapture(maxLines int) *OutputCapture {
	return &OutputCapture{maxLines: maxLines}
}

// Write splits p into lines, empty lines ignored
func (o *OutputCapture) Write(p []byte) (n int, err error) {
	if o.maxLines <= 0 {
		return len(p), nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		if len(o.lines) >= o.maxLines {
			o.lines = o.lines[1:]
			o.dropped++
		}
		o.lines = append(o.lines, string(line))
	}
	return len(p), nil
}

// GetOutput returns captured lines joined with new lines
func (o *OutputCapture) GetOutput() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dropped == 0 {
		return strings.Join(o.lines, "\n")
	}
	return fmt.Sprintf("... %d earlier lines skipped\n%s", o.dropped, strings.Join(o.lines, "\n"))
}

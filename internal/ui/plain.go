package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints plain text progress lines, for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors int
	warns  int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

func (r *PlainRenderer) Start(_ context.Context) error { return nil }

func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d", event.Stage.Icon(), event.Current, event.Total)
		if event.Message != "" {
			_, _ = fmt.Fprintf(r.out, " - %s", event.Message)
		}
		_, _ = fmt.Fprintln(r.out)
	} else if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warns++
	} else {
		r.errors++
	}

	switch {
	case event.Detail != "" && event.Err != nil:
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Detail, event.Err)
	case event.Detail != "":
		_, _ = fmt.Fprintf(r.out, "%s: %s\n", prefix, event.Detail)
	default:
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d passages (%d embedded) in %s",
		stats.Passages, stats.Embedded, stats.Duration.Round(100*time.Millisecond))
	if stats.Rejected > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d rejected", stats.Rejected)
	}
	if r.errors > 0 || r.warns > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", r.errors, r.warns)
	}
	_, _ = fmt.Fprintln(r.out)
}

func (r *PlainRenderer) Stop() error { return nil }

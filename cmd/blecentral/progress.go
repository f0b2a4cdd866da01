package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/srg/blecentral/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single status line with elapsed or remaining time.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stderr, ...)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Output is suppressed when w is not a terminal.
type ProgressPrinter struct {
	w        io.Writer
	enabled  bool
	prefix   string
	phase    atomic.Value // stores string - current phase name
	started  atomic.Bool
	stopped  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
	countUp  bool
	duration time.Duration
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(w io.Writer, prefix string, phase string) *ProgressPrinter {
	p := &ProgressPrinter{w: w, enabled: isTerminal(w), prefix: prefix, countUp: true}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from the duration.
func NewCountdownProgressPrinter(w io.Writer, prefix string, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{w: w, enabled: isTerminal(w), prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	if !p.enabled {
		close(p.done)
		return
	}

	start := time.Now()
	fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, p.Phase())

	groutine.Go(context.Background(), "cli-progress", func(context.Context) {
		defer close(p.done)

		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, p.Phase(), p.seconds(time.Since(start)))
			}
		}
	})
}

func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.countUp {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second, e.g. 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

// SetPhase updates the phase shown in the status line.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

func (p *ProgressPrinter) Phase() string {
	return p.phase.Load().(string)
}

// Stop stops the progress display and clears the line. Safe to call multiple times.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopChan)
	<-p.done
	if p.enabled {
		fmt.Fprint(p.w, clearLineSequence)
	}
}

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/mkverify/internal/timeutil"
)

// progressPrinter writes "\r Process: xx.xx%" lines at most once per
// interval, and always for the final update. Updates may arrive out of
// order; anything after the final one is dropped.
type progressPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	finished bool
	clock    timeutil.Clock
}

func newProgressPrinter(w io.Writer, interval time.Duration, clock timeutil.Clock) *progressPrinter {
	return &progressPrinter{w: w, interval: interval, clock: clock}
}

func (p *progressPrinter) Update(done, total int) {
	if total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	now := p.clock.Now()
	final := done >= total
	if !final && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	fmt.Fprintf(p.w, "\r Process: %.2f%%", float64(done)*100/float64(total))
	if final {
		p.finished = true
		fmt.Fprintln(p.w)
	}
}

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/keagan/reelforge/internal/pipeline"
)

// progressPrinter draws the extraction counter on one terminal line.
// Events arrive from the extraction workers, so writes are serialized and
// counts older than the last one drawn are ignored.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) handle(ev pipeline.Event) {
	if ev.Stage != pipeline.EventAssemblyProgress {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Done <= p.last {
		return
	}
	p.last = ev.Done

	fmt.Fprintf(p.out, "\rextracting segments %d/%d", ev.Done, ev.Total)
	if ev.Done >= ev.Total {
		fmt.Fprintln(p.out)
	}
}

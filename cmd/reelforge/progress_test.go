package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/keagan/reelforge/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterConcurrentEvents(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	const total = 50
	var wg sync.WaitGroup
	for i := 1; i <= total; i++ {
		wg.Add(1)
		go func(done int) {
			defer wg.Done()
			p.handle(pipeline.Event{Stage: pipeline.EventAssemblyProgress, Done: done, Total: total})
		}(i)
	}
	wg.Wait()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "exactly one line break")
	assert.True(t, strings.HasSuffix(out, "extracting segments 50/50\n"), "final count ends the line: %q", out)

	// every drawn update is a complete frame
	for _, frame := range strings.Split(strings.TrimSuffix(out, "\n"), "\r")[1:] {
		assert.Regexp(t, `^extracting segments \d+/50$`, frame)
	}
}

func TestProgressPrinterDropsStaleCounts(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	ev := func(done int) pipeline.Event {
		return pipeline.Event{Stage: pipeline.EventAssemblyProgress, Done: done, Total: 3}
	}
	p.handle(ev(1))
	p.handle(ev(3))
	p.handle(ev(2))
	p.handle(pipeline.Event{Stage: pipeline.EventPlanSelected, Done: 9, Total: 9})

	assert.Equal(t, "\rextracting segments 1/3\rextracting segments 3/3\n", buf.String())
}

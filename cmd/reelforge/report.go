package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/pipeline"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/keagan/reelforge/internal/timeline"
)

// renderResult formats a finished or planned run for the terminal
func renderResult(res *pipeline.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s: %s\n", res.RunID, res.Status)
	fmt.Fprintf(&b, "source %s (%.1fs), target %.1fs\n", res.Source, res.SourceDuration, res.Target)

	if len(res.Stats.Detectors) > 0 {
		b.WriteString(renderDetectors(res.Stats))
		b.WriteString("\n")
	}

	if res.Status == pipeline.StatusNoViableCandidates {
		fmt.Fprintf(&b, "no viable candidates among %d\n", res.Stats.Candidates)
	} else if !res.CutPlan.Empty() {
		b.WriteString(renderCutPlan(res.CutPlan))
		b.WriteString("\n")
		fmt.Fprintf(&b, "selected %d of %d candidates, %.1fs (score %.2f)\n",
			res.Stats.Selected, res.Stats.Candidates, res.Plan.Duration, res.Plan.Score)
	}

	if a := res.Artifact; a != nil {
		fmt.Fprintf(&b, "wrote %s: %.1fs, %d segments via %s (%d copied",
			a.Path, a.Duration, a.Segments, a.Strategy, a.CopiedSegments())
		if len(a.Retried) > 0 {
			fmt.Fprintf(&b, ", %d retried", len(a.Retried))
		}
		b.WriteString(")\n")
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	fmt.Fprintf(&b, "elapsed %s\n", res.Stats.Elapsed.Round(1e6))
	return b.String()
}

func renderCutPlan(plan timeline.CutPlan) string {
	var rows [][]string
	if plan.Intro != nil {
		path := plan.Intro.Path
		if path == "" {
			path = "(generated)"
		}
		rows = append(rows, []string{"intro", "", "", fmt.Sprintf("%.2f", plan.Intro.Duration), "", path})
	}
	for _, e := range plan.Entries {
		names := make([]string, len(e.Sources))
		for i, s := range e.Sources {
			names[i] = string(s)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Index+1),
			fmt.Sprintf("%.2f", e.SourceStart),
			fmt.Sprintf("%.2f", e.SourceEnd),
			fmt.Sprintf("%.2f", e.Duration()),
			fmt.Sprintf("%.3f", e.Score),
			strings.Join(names, "+"),
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", "Length", "Score", "Sources"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderDetectors(stats pipeline.Stats) string {
	sources := make([]signals.Source, 0, len(stats.Detectors))
	for src := range stats.Detectors {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool {
		return signals.Rank(sources[i]) < signals.Rank(sources[j])
	})

	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		intervals := "-"
		if n, ok := stats.Intervals[src]; ok {
			intervals = fmt.Sprintf("%d", n)
		}
		rows = append(rows, []string{string(src), intervals, stats.Detectors[src].Round(1e6).String()})
	}
	return renderTable([]string{"Detector", "Intervals", "Time"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight})
}

// describeError names the failing stage and reason of a pipeline error
func describeError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "error: cancelled"
	}

	var fe *faults.Error
	if !errors.As(err, &fe) {
		return fmt.Sprintf("error: %v", err)
	}

	stage := fe.Stage
	if stage == "" {
		stage = "pipeline"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "error: %s stage failed (%s)", stage, fe.Kind)
	if fe.Source != "" {
		fmt.Fprintf(&b, " in %s detector", fe.Source)
	}
	if fe.Segment >= 0 {
		fmt.Fprintf(&b, " at segment %d", fe.Segment+1)
	}
	if reason := fe.Detail; reason != "" || fe.Err != nil {
		if fe.Err != nil {
			if reason != "" {
				reason += ": "
			}
			reason += fe.Err.Error()
		}
		fmt.Fprintf(&b, "\n  %s", strings.ReplaceAll(reason, "\n", "\n  "))
	}
	if len(fe.Succeeded) > 0 {
		fmt.Fprintf(&b, "\n  %d extracted segments kept:", len(fe.Succeeded))
		for _, path := range fe.Succeeded {
			fmt.Fprintf(&b, "\n    %s", path)
		}
	}
	return b.String()
}

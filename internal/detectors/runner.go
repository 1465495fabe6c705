package detectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Outcome collects the detectors that succeeded and the ones that did not
type Outcome struct {
	// Signals holds successful results in detector order.
	Signals []signals.TimeSignal
	// Failures holds one DetectorTimeout or DetectorFailure per failed detector.
	Failures []*faults.Error
	// Elapsed is the wall time each detector ran for.
	Elapsed map[signals.Source]time.Duration
}

// Warnings renders the failures for reporting
func (o Outcome) Warnings() []string {
	out := make([]string, len(o.Failures))
	for i, f := range o.Failures {
		out[i] = f.Error()
	}
	return out
}

type runResult struct {
	signal  signals.TimeSignal
	err     *faults.Error
	elapsed time.Duration
}

// RunAll runs every detector concurrently and waits for all of them. Each
// detector gets its own timeout (0 disables it). Individual failures are
// reported in the Outcome; RunAll fails only when the parent context is
// cancelled or no detector succeeded.
func RunAll(ctx context.Context, logger zerolog.Logger, dets []Detector, input string, duration float64, timeout time.Duration) (Outcome, error) {
	log := logger.With().Str("component", "detector-runner").Logger()

	if len(dets) == 0 {
		return Outcome{}, faults.New(faults.KindDetectorFailure, faults.StageDetect, "no detectors enabled", nil)
	}

	results := make([]runResult, len(dets))
	var g errgroup.Group
	for i, d := range dets {
		i, d := i, d
		g.Go(func() error {
			results[i] = runOne(ctx, d, input, duration, timeout)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Elapsed: make(map[signals.Source]time.Duration, len(dets))}
	for i, r := range results {
		src := dets[i].Source()
		out.Elapsed[src] = r.elapsed
		if r.err != nil {
			log.Warn().Err(r.err).Str("detector", string(src)).Dur("elapsed", r.elapsed).Msg("detector failed")
			out.Failures = append(out.Failures, r.err)
			continue
		}
		log.Debug().
			Str("detector", string(src)).
			Int("intervals", len(r.signal.Intervals)).
			Dur("elapsed", r.elapsed).
			Msg("detector finished")
		out.Signals = append(out.Signals, r.signal)
	}

	if len(out.Signals) == 0 {
		return out, allFailed(out.Failures)
	}
	return out, nil
}

func runOne(ctx context.Context, d Detector, input string, duration float64, timeout time.Duration) runResult {
	src := string(d.Source())
	start := time.Now()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sig, err := d.Detect(runCtx, input, duration)
	elapsed := time.Since(start)

	if err == nil {
		sig.Source = d.Source()
		if verr := sig.Validate(duration); verr != nil {
			err = verr
		}
	}
	if err == nil {
		return runResult{signal: sig, elapsed: elapsed}
	}

	kind := faults.KindDetectorFailure
	detail := "detector returned an error"
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		kind = faults.KindDetectorTimeout
		detail = fmt.Sprintf("exceeded %s", timeout)
	}
	fe := faults.New(kind, faults.StageDetect, detail, err)
	fe.Source = src
	return runResult{err: fe, elapsed: elapsed}
}

// allFailed reports DetectorTimeout when every detector timed out and
// DetectorFailure otherwise
func allFailed(failures []*faults.Error) error {
	kind := faults.KindDetectorTimeout
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
		if f.Kind != faults.KindDetectorTimeout {
			kind = faults.KindDetectorFailure
		}
	}
	return faults.New(kind, faults.StageDetect, "all detectors failed", errors.Join(errs...))
}

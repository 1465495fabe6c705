package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// analysisSampleRate is the rate audio is resampled to before windowing
const analysisSampleRate = 16000

// LoudnessWindows measures the RMS level of consecutive fixed-length audio
// windows. The last window may be shorter than window seconds.
func (e *Executor) LoudnessWindows(ctx context.Context, input string, window float64) ([]LoudnessSample, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	e.logger.Info().
		Str("input", input).
		Float64("window", window).
		Msg("measuring loudness")

	samples := int(math.Round(window * analysisSampleRate))
	if samples < 1 {
		samples = 1
	}

	filter := NewFilterBuilder().
		Custom(fmt.Sprintf("aresample=%d", analysisSampleRate)).
		Custom("aformat=channel_layouts=mono").
		Custom(fmt.Sprintf("asetnsamples=n=%d:p=0", samples)).
		Custom("astats=metadata=1:reset=1:measure_perchannel=none").
		Custom("ametadata=print:key=lavfi.astats.Overall.RMS_level").
		Build()

	args := []string{
		"-i", input,
		"-map", "0:a:0",
		"-vn",
		"-af", filter,
		"-f", "null",
		"-",
	}

	output, err := e.analyze(ctx, "loudness analysis", args)
	if err != nil {
		return nil, err
	}

	levels := parseLoudnessOutput(output, window)
	e.logger.Info().Int("windows", len(levels)).Msg("loudness analysis complete")
	return levels, nil
}

// parseLoudnessOutput pairs each pts_time line with the RMS level printed
// after it
func parseLoudnessOutput(output string, window float64) []LoudnessSample {
	var (
		levels  []LoudnessSample
		current = -1.0
	)

	for _, line := range strings.Split(output, "\n") {
		if v, ok := fieldAfter(line, "pts_time:"); ok {
			if t, err := strconv.ParseFloat(v, 64); err == nil {
				current = t
			}
			continue
		}
		v, ok := fieldAfter(line, "lavfi.astats.Overall.RMS_level=")
		if !ok || current < 0 {
			continue
		}

		rms, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(rms, 0) || math.IsNaN(rms) || rms < SilenceFloor {
			rms = SilenceFloor
		}
		levels = append(levels, LoudnessSample{Start: current, End: current + window, RMS: rms})
		current = -1
	}

	return levels
}

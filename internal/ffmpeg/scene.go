package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DetectScenes finds scene changes whose score exceeds threshold using the
// select filter's scene metric
func (e *Executor) DetectScenes(ctx context.Context, input string, threshold float64) ([]SceneChange, error) {
	e.logger.Info().
		Str("input", input).
		Float64("threshold", threshold).
		Msg("detecting scene changes")

	args := []string{
		"-i", input,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("select='gt(scene,%f)',metadata=print", threshold),
		"-an",
		"-f", "null",
		"-",
	}

	output, err := e.analyze(ctx, "scene detection", args)
	if err != nil {
		return nil, err
	}

	scenes := parseSceneOutput(output)
	e.logger.Info().Int("scenes", len(scenes)).Msg("scene detection complete")
	return scenes, nil
}

// parseSceneOutput pairs each pts_time line with the scene score that
// follows it
func parseSceneOutput(output string) []SceneChange {
	var (
		scenes  []SceneChange
		current = -1.0
	)

	for _, line := range strings.Split(output, "\n") {
		if v, ok := fieldAfter(line, "pts_time:"); ok {
			if t, err := strconv.ParseFloat(v, 64); err == nil {
				current = t
			}
			continue
		}
		if v, ok := fieldAfter(line, "lavfi.scene_score="); ok && current >= 0 {
			if score, err := strconv.ParseFloat(v, 64); err == nil {
				scenes = append(scenes, SceneChange{Time: current, Score: score})
			}
			current = -1
		}
	}

	return scenes
}

// fieldAfter returns the whitespace-delimited token following marker
func fieldAfter(line, marker string) (string, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return "", false
	}
	fields := strings.Fields(line[idx+len(marker):])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// ExtractFrames samples frames at fps into dir as JPEG files, scaled to
// width x height when both are positive. Paths are returned in timestamp
// order; frame i was taken at i/fps seconds.
func (e *Executor) ExtractFrames(ctx context.Context, input, dir string, fps float64, width, height int) ([]string, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("frame rate must be positive")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("input", input).
		Str("dir", dir).
		Float64("fps", fps).
		Msg("sampling frames")

	filter := NewFilterBuilder().FPS(fps).Scale(width, height).Build()
	args := []string{
		"-i", input,
		"-map", "0:v:0",
		"-vf", filter,
		"-q:v", "3",
		filepath.Join(dir, "frame_%06d.jpg"),
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("frame sampling")
		},
	}
	if err := e.Run(ctx, opts); err != nil {
		return nil, fmt.Errorf("frame sampling failed: %w", err)
	}

	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	return frames, nil
}

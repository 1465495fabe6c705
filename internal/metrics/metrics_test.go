package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderWritesTextfile(t *testing.T) {
	r := New()
	r.RecordRun("ok")
	r.RecordStage("detect", 1500*time.Millisecond)
	r.RecordDetector("action", "detector_timeout", time.Second)
	r.RecordDetector("scene", "", 2*time.Second)
	r.RecordAssembly([]string{"copy", "copy", "reencode"}, 1, "filter-concat", 42)
	r.RecordPlan(54, 60)
	r.RecordError("assemble", "extraction_failure")

	path := filepath.Join(t.TempDir(), "reelforge.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	for _, want := range []string{
		`reelforge_runs_total{status="ok"} 1`,
		`reelforge_detector_failures_total{detector="action",kind="detector_timeout"} 1`,
		`reelforge_segments_extracted_total{mode="copy"} 2`,
		`reelforge_segments_extracted_total{mode="reencode"} 1`,
		`reelforge_segment_retries_total 1`,
		`reelforge_concat_total{strategy="filter-concat"} 1`,
		`reelforge_errors_total{kind="extraction_failure",stage="assemble"} 1`,
		`reelforge_stage_duration_seconds_count{stage="detect"} 1`,
		`reelforge_plan_fill_ratio_sum 0.9`,
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, `detector="scene",kind=`)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordRun("ok")
	r.RecordStage("detect", time.Second)
	r.RecordAssembly([]string{"copy"}, 0, "copy-concat", 1)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordRun("ok")

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "reelforge_runs_total", f.GetName())
	}
}

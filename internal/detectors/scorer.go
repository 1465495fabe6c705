package detectors

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

// FrameScorer rates sampled frames for on-screen action. Score returns one
// confidence in [0,1] per frame, in frame order.
type FrameScorer interface {
	Score(ctx context.Context, frames []string) ([]float64, error)
	Close() error
}

// MotionScorer rates frames by how much they differ from the previous frame
type MotionScorer struct {
	logger zerolog.Logger
	width  uint
	height uint
}

// NewMotionScorer creates a frame-difference scorer
func NewMotionScorer(logger zerolog.Logger) *MotionScorer {
	return &MotionScorer{
		logger: logger.With().Str("scorer", "motion").Logger(),
		width:  64,
		height: 36,
	}
}

// Score computes the mean absolute luminance difference between consecutive
// frames, normalized by the largest difference. The first frame scores 0.
func (m *MotionScorer) Score(ctx context.Context, frames []string) ([]float64, error) {
	energy := make([]float64, len(frames))

	var prev []float64
	peak := 0.0
	for i, path := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lum, err := m.luminance(path)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if prev != nil {
			energy[i] = meanAbsDiff(prev, lum)
			peak = math.Max(peak, energy[i])
		}
		prev = lum
	}

	if peak > 0 {
		for i := range energy {
			energy[i] /= peak
		}
	}

	m.logger.Debug().
		Int("frames", len(frames)).
		Float64("peak_energy", peak).
		Msg("motion scoring complete")

	return energy, nil
}

// luminance decodes a frame, shrinks it and returns Rec. 601 luma in [0,1]
func (m *MotionScorer) luminance(path string) ([]float64, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}

	small := resize.Resize(m.width, m.height, img, resize.Bilinear)
	bounds := small.Bounds()

	out := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			out = append(out, (0.299*float64(r>>8)+0.587*float64(g>>8)+0.114*float64(b>>8))/255.0)
		}
	}
	return out, nil
}

// Close is a no-op for the motion scorer
func (m *MotionScorer) Close() error {
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func meanAbsDiff(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(n)
}

package detectors

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names the action model must expose. The input is float32
// [1,3,224,224] ImageNet-normalized RGB; the output holds one logit.
const (
	modelInputName  = "pixel_values"
	modelOutputName = "logits"
	modelInputSize  = 224
)

// ModelScorer rates frames with an ONNX action classifier
type ModelScorer struct {
	logger     zerolog.Logger
	modelPath  string
	inputShape ort.Shape
	session    *ort.DynamicAdvancedSession
}

// NewModelScorer loads the model at modelPath. ONNXRUNTIME_SHARED_LIBRARY
// overrides the runtime library location.
func NewModelScorer(logger zerolog.Logger, modelPath string) (*ModelScorer, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	if lib := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	sess, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{modelInputName},
		[]string{modelOutputName},
		nil,
	)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create action model session: %w", err)
	}

	logger.Info().
		Str("model", modelPath).
		Str("input", modelInputName).
		Str("output", modelOutputName).
		Msg("action model loaded")

	return &ModelScorer{
		logger:     logger.With().Str("scorer", "onnx").Logger(),
		modelPath:  modelPath,
		inputShape: ort.NewShape(1, 3, modelInputSize, modelInputSize),
		session:    sess,
	}, nil
}

// Score runs the model on every frame and maps each logit through a sigmoid
func (m *ModelScorer) Score(ctx context.Context, frames []string) ([]float64, error) {
	out := make([]float64, len(frames))
	for i, path := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := m.scoreFrame(path)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out[i] = score
	}

	m.logger.Debug().Int("frames", len(frames)).Msg("model scoring complete")
	return out, nil
}

func (m *ModelScorer) scoreFrame(path string) (float64, error) {
	pixels, err := m.preprocess(path)
	if err != nil {
		return 0, fmt.Errorf("image preprocessing failed: %w", err)
	}
	defer pixels.Destroy()

	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer logits.Destroy()

	if err := m.session.Run([]ort.ArbitraryTensor{pixels}, []ort.ArbitraryTensor{logits}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	data := logits.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty %s tensor", modelOutputName)
	}
	return sigmoid(float64(data[0])), nil
}

// preprocess -> float32[1,3,224,224], channel-major, ImageNet normalization
func (m *ModelScorer) preprocess(path string) (*ort.Tensor[float32], error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}

	resized := resize.Resize(modelInputSize, modelInputSize, img, resize.Bilinear)

	plane := modelInputSize * modelInputSize
	data := make([]float32, 3*plane)
	mean := [3]float32{0.485, 0.456, 0.406}
	std := [3]float32{0.229, 0.224, 0.225}

	bounds := resized.Bounds()
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			rgb := [3]float32{float32(r>>8) / 255, float32(g>>8) / 255, float32(b>>8) / 255}
			for ch := 0; ch < 3; ch++ {
				data[ch*plane+idx] = (rgb[ch] - mean[ch]) / std[ch]
			}
			idx++
		}
	}

	return ort.NewTensor(m.inputShape, data)
}

// Close releases the session and the ONNX environment
func (m *ModelScorer) Close() error {
	m.logger.Info().Msg("closing action model session")
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return err
		}
		m.session = nil
	}
	return ort.DestroyEnvironment()
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

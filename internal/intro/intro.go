// Package intro resolves the clip placed before the first highlight: either
// a configured external asset or a generated title card cached next to the
// outputs.
package intro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/keagan/reelforge/pkg/util"
	"github.com/rs/zerolog"
)

// CacheDirName is the directory under the output dir holding generated cards
const CacheDirName = ".intro"

const lockRetry = 100 * time.Millisecond

// Media is the ffmpeg surface the provider needs
type Media interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	GenerateIntro(ctx context.Context, opts ffmpeg.IntroOptions) error
}

// Spec describes the output an intro must blend into
type Spec struct {
	Width     int
	Height    int
	FPS       float64
	WithAudio bool
}

// Provider resolves intro clips
type Provider struct {
	logger   zerolog.Logger
	media    Media
	config   config.IntroConfig
	cacheDir string
}

// New creates a provider that caches generated cards under outputDir
func New(logger zerolog.Logger, media Media, cfg config.IntroConfig, outputDir string) *Provider {
	return &Provider{
		logger:   logger.With().Str("component", "intro").Logger(),
		media:    media,
		config:   cfg,
		cacheDir: filepath.Join(outputDir, CacheDirName),
	}
}

// Resolve returns the configured intro when one is set, otherwise a cached
// or freshly generated title card matching spec
func (p *Provider) Resolve(ctx context.Context, spec Spec) (*timeline.IntroRef, error) {
	if p.config.Path != "" {
		return p.external(ctx, p.config.Path)
	}
	return p.generated(ctx, spec)
}

func (p *Provider) external(ctx context.Context, path string) (*timeline.IntroRef, error) {
	if size := util.FileSize(path); size <= ffmpeg.MinOutputBytes {
		return nil, fmt.Errorf("intro %s is missing or too small (%d bytes)", path, size)
	}
	info, err := p.media.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe intro: %w", err)
	}
	if info.Seconds() <= 0 {
		return nil, fmt.Errorf("intro %s has no duration", path)
	}

	p.logger.Debug().Str("path", path).Float64("seconds", info.Seconds()).Msg("using configured intro")
	return &timeline.IntroRef{Path: path, Duration: info.Seconds()}, nil
}

// generated renders the card once per distinct spec. Concurrent runs sharing
// an output directory serialize on a lock file next to the card.
func (p *Provider) generated(ctx context.Context, spec Spec) (*timeline.IntroRef, error) {
	if err := util.EnsureDir(p.cacheDir); err != nil {
		return nil, fmt.Errorf("create intro cache: %w", err)
	}

	path := filepath.Join(p.cacheDir, p.CardName(spec))
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire intro lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("intro lock %s not acquired", lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to release intro lock")
		}
	}()

	if util.FileSize(path) > ffmpeg.MinOutputBytes {
		p.logger.Debug().Str("path", path).Msg("reusing cached intro")
		return p.external(ctx, path)
	}

	tmp := strings.TrimSuffix(path, ".mp4") + ".partial.mp4"
	defer util.CleanupFiles(tmp)

	err = p.media.GenerateIntro(ctx, ffmpeg.IntroOptions{
		Output:    tmp,
		Text:      p.config.Text,
		Seconds:   p.config.Seconds,
		FontSize:  p.config.FontSize,
		Width:     spec.Width,
		Height:    spec.Height,
		FPS:       spec.FPS,
		WithAudio: spec.WithAudio,
	})
	if err != nil {
		return nil, err
	}
	if size := util.FileSize(tmp); size <= ffmpeg.MinOutputBytes {
		return nil, fmt.Errorf("generated intro is too small (%d bytes)", size)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("store intro: %w", err)
	}

	p.logger.Info().Str("path", path).Msg("intro card generated")
	return p.external(ctx, path)
}

// CardName is the cache file name for spec. The suffix is a name-based UUID
// over every input that changes the rendered card.
func (p *Provider) CardName(spec Spec) string {
	key := fmt.Sprintf("%s|%.3f|%d|%dx%d|%.3f|%t",
		p.config.Text, p.config.Seconds, p.config.FontSize, spec.Width, spec.Height, spec.FPS, spec.WithAudio)
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	return fmt.Sprintf("intro_%dx%d_%s_%s.mp4", spec.Width, spec.Height, util.SafeName(fmt.Sprintf("%g", spec.FPS)), id[:8])
}

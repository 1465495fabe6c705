package main

import (
	"fmt"

	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [input video]",
	Short: "Show stream information for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
		if err != nil {
			return err
		}
		info, err := exec.ProbeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		audio := "none"
		if info.HasAudio {
			audio = fmt.Sprintf("%s %d Hz, %d ch", info.AudioCodec, info.SampleRate, info.Channels)
		}
		rows := [][]string{
			{"file", info.FilePath},
			{"duration", util.FormatDuration(info.Duration)},
			{"resolution", fmt.Sprintf("%dx%d", info.Width, info.Height)},
			{"fps", fmt.Sprintf("%.3f", info.FPS)},
			{"video", fmt.Sprintf("%s %s", info.VideoCodec, info.PixelFormat)},
			{"audio", audio},
			{"bitrate", fmt.Sprintf("%d kb/s", info.Bitrate/1000)},
		}
		fmt.Println(renderTable([]string{"Property", "Value"}, rows, nil))
		return nil
	},
}

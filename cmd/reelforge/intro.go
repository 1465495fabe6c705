package main

import (
	"fmt"

	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newIntroCmd() *cobra.Command {
	var (
		text     string
		seconds  float64
		size     string
		fps      float64
		fontSize int
		audio    bool
	)

	cmd := &cobra.Command{
		Use:   "intro [output file]",
		Short: "Render a title card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if !cmd.Flags().Changed("text") {
				text = cfg.Intro.Text
			}
			if !cmd.Flags().Changed("seconds") {
				seconds = cfg.Intro.Seconds
			}
			if !cmd.Flags().Changed("font-size") {
				fontSize = cfg.Intro.FontSize
			}

			res, err := timeline.ParseResolution(size)
			if err != nil {
				return err
			}
			if res.Original() {
				return fmt.Errorf("intro needs an explicit size")
			}

			exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
			if err != nil {
				return err
			}
			exec.SetEncoding(ffmpeg.Encoding{
				VideoCodec: cfg.FFmpeg.VideoCodec,
				AudioCodec: cfg.FFmpeg.AudioCodec,
				CRF:        cfg.FFmpeg.CRF,
				Preset:     cfg.FFmpeg.Preset,
			})

			err = exec.GenerateIntro(cmd.Context(), ffmpeg.IntroOptions{
				Output:    args[0],
				Text:      text,
				Seconds:   seconds,
				FontSize:  fontSize,
				Width:     res.Width,
				Height:    res.Height,
				FPS:       fps,
				WithAudio: audio,
			})
			if err != nil {
				return err
			}

			fmt.Println(args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "card text (default from config)")
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "card length in seconds (default from config)")
	cmd.Flags().IntVar(&fontSize, "font-size", 0, "font size (default from config)")
	cmd.Flags().StringVar(&size, "size", "1280x720", "frame size WxH")
	cmd.Flags().Float64Var(&fps, "fps", 30, "frame rate")
	cmd.Flags().BoolVar(&audio, "audio", true, "include a silent stereo track")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"video2ascii/config"
	"video2ascii/frames2video"
	v2atypes "video2ascii/type"
	"video2ascii/video2frame"
)

func newRootCmd() *cobra.Command {
	var (
		inputPath, outputPath, framesPath string
		ffmpegPath, logLevel, logFormat   string
		encodeTimeout                     time.Duration
	)

	cmd := &cobra.Command{
		Use:           "video2ascii",
		Short:         "把视频转换为字符画视频",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.DefaultEnvFile)
			if err != nil {
				return err
			}
			cfg.InputVideoPath = inputPath
			cfg.OutputVideoPath = outputPath
			cfg.OutputFramesPath = framesPath

			flags := cmd.Flags()
			if flags.Changed("ffmpeg") {
				cfg.FFmpegPath = ffmpegPath
			}
			if flags.Changed("encode-timeout") {
				cfg.EncodeTimeout = encodeTimeout
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ConfigureLogging(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&inputPath, "input-video-path", "i", "", "输入视频文件路径")
	flags.StringVarP(&outputPath, "output-video-path", "o", "", "输出视频文件路径")
	flags.StringVarP(&framesPath, "output-frames-path", "f", "", "输出帧图像目录")
	flags.StringVar(&ffmpegPath, "ffmpeg", "", "ffmpeg 可执行文件路径（默认使用 PATH）")
	flags.DurationVar(&encodeTimeout, "encode-timeout", 0, "最终编码步骤的超时时间，0 表示不限")
	flags.StringVar(&logLevel, "log-level", "info", "日志级别")
	flags.StringVar(&logFormat, "log-format", "text", "日志格式 text|json")
	cmd.MarkFlagRequired("input-video-path")
	cmd.MarkFlagRequired("output-video-path")
	cmd.MarkFlagRequired("output-frames-path")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logrus.WithFields(logrus.Fields{
		"run_id": uuid.NewString(),
		"input":  cfg.InputVideoPath,
	})
	start := time.Now()

	src, err := video2frame.Open(ctx, cfg.InputVideoPath, video2frame.Options{FFmpegPath: cfg.FFmpegPath})
	if err != nil {
		return err
	}
	enc := &frames2video.FFmpegEncoder{
		FFmpegPath: cfg.FFmpegPath,
		Timeout:    cfg.EncodeTimeout,
	}
	if err := convertVideo(ctx, cfg, src, enc, log); err != nil {
		return err
	}

	log.WithField("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Info("Video processing completed")
	fmt.Println("Video processing completed successfully.")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if _, ok := v2atypes.KindOf(err); ok {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

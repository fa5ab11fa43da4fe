// Package frames2video 调用 ffmpeg 把 frame_%04d.png 序列编码为 H.264 视频。
package frames2video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	v2atypes "video2ascii/type"
	"video2ascii/video2frame"
)

const (
	FrameRate    = 30
	FramePattern = "frame_%04d.png"
)

var frameNameRe = regexp.MustCompile(`^frame_(\d{4,})\.png$`)

// Encoder 把帧目录编码为视频
type Encoder interface {
	Encode(ctx context.Context, framesDir, outputPath string) error
}

// FFmpegEncoder 外部 ffmpeg 进程实现的 Encoder
type FFmpegEncoder struct {
	FFmpegPath string
	Timeout    time.Duration // 0 表示不限时，只作用于编码这一步
}

// Encode 检查帧序列后运行 ffmpeg
func (e *FFmpegEncoder) Encode(ctx context.Context, framesDir, outputPath string) error {
	count, err := CheckSequence(framesDir)
	if err != nil {
		return v2atypes.NewError(v2atypes.ErrSubprocess, "encode "+outputPath, err)
	}

	binary, err := video2frame.BinaryOption(e.FFmpegPath)
	if err != nil {
		return v2atypes.NewError(v2atypes.ErrSubprocess, "locate ffmpeg", err)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	stderr := &bytes.Buffer{}
	cmd := encodeStream(framesDir, outputPath)
	cmd.Context = ctx
	cmd = cmd.WithErrorOutput(stderr)

	logrus.WithFields(logrus.Fields{
		"function": "FFmpegEncoder.Encode",
		"frames":   count,
		"output":   outputPath,
		"args":     cmd.GetArgs(),
	}).Info("Encoding video")

	start := time.Now()
	if err := cmd.Run(binary); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", err, ctx.Err())
		}
		return v2atypes.NewError(v2atypes.ErrSubprocess, "ffmpeg encode",
			fmt.Errorf("failed to execute 'ffmpeg' command: %w: %s", err, video2frame.StderrTail(stderr.String())))
	}

	logrus.WithFields(logrus.Fields{
		"function": "FFmpegEncoder.Encode",
		"output":   outputPath,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Video encoded")
	return nil
}

// encodeStream 固定参数：30fps、libx264、yuv420p、覆盖已有输出
func encodeStream(framesDir, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Input(filepath.Join(framesDir, FramePattern), ffmpeg.KwArgs{
		"framerate": FrameRate,
	}).
		Output(outputPath, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"pix_fmt": "yuv420p",
		}).
		OverWriteOutput()
}

// CheckSequence 确认帧从 frame_0000.png 开始连续编号，返回帧数
func CheckSequence(framesDir string) (int, error) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return 0, err
	}

	var indices []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := frameNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		return 0, fmt.Errorf("%w in %s", v2atypes.ErrNoFrames, framesDir)
	}

	sort.Ints(indices)
	for i, n := range indices {
		if n != i {
			return 0, fmt.Errorf("%w: missing %s", v2atypes.ErrFrameGap, fmt.Sprintf(FramePattern, i))
		}
	}
	return len(indices), nil
}

package video2frame

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	v2atypes "video2ascii/type"
)

// Source 逐帧产出解码结果，结束时返回 io.EOF
type Source interface {
	Next() (*v2atypes.DecodedFrame, error)
	Close() error
}

type state int

const (
	stateReading  state = iota // ffmpeg 仍在运行
	stateDraining              // ffmpeg 已退出，读取管道中剩余的帧
	stateDone
)

func (s state) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateDraining:
		return "draining"
	default:
		return "done"
	}
}

type Options struct {
	FFmpegPath string // 同目录下的 ffprobe 一并用于探测
}

// FFmpegSource 通过 ffmpeg 子进程把视频流解码为 rawvideo
type FFmpegSource struct {
	info      *StreamInfo
	reader    io.Reader
	exited    <-chan struct{}
	stop      func()
	sizes     []int
	strides   []int
	frameSize int
	index     int
	state     state
	closeOnce sync.Once
}

// Open 探测输入并启动解码进程
func Open(ctx context.Context, videoPath string, opts Options) (*FFmpegSource, error) {
	info, err := ProbeVideo(videoPath, ProbePath(opts.FFmpegPath))
	if err != nil {
		return nil, err
	}
	binary, err := BinaryOption(opts.FFmpegPath)
	if err != nil {
		return nil, v2atypes.NewError(v2atypes.ErrDecode, "locate ffmpeg", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r, w := io.Pipe()
	stderr := &bytes.Buffer{}

	// ffmpeg-go 把输出写入端挂在 Context 上，必须先设置 Context
	cmd := decodeStream(videoPath, info)
	cmd.Context = ctx
	cmd = cmd.WithOutput(w).WithErrorOutput(stderr)

	exited := make(chan struct{})
	go func() {
		err := cmd.Run(binary)
		close(exited)
		if err != nil {
			err = v2atypes.NewError(v2atypes.ErrDecode, "ffmpeg decode",
				fmt.Errorf("%w: %s", err, StderrTail(stderr.String())))
		}
		w.CloseWithError(err)
	}()

	src, err := newFFmpegSource(info, r, exited, func() {
		r.Close()
		cancel()
		<-exited
	})
	if err != nil {
		cancel()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"path":     videoPath,
		"width":    info.Width,
		"height":   info.Height,
		"format":   info.Format,
	}).Infof("video size: %dx%d", info.Width, info.Height)
	return src, nil
}

// decodeStream 构造 ffmpeg 命令：只取选中的视频流，按帧输出原始像素
func decodeStream(videoPath string, info *StreamInfo) *ffmpeg.Stream {
	return ffmpeg.Input(videoPath).
		Output("pipe:1", ffmpeg.KwArgs{
			"map":      fmt.Sprintf("0:%d", info.Index),
			"format":   "rawvideo",
			"pix_fmt":  string(info.Format),
			"fps_mode": "passthrough",
		})
}

func newFFmpegSource(info *StreamInfo, r io.Reader, exited <-chan struct{}, stop func()) (*FFmpegSource, error) {
	sizes, strides, err := info.Format.PlaneLayout(info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	frameSize := 0
	for _, s := range sizes {
		frameSize += s
	}
	return &FFmpegSource{
		info:      info,
		reader:    bufio.NewReaderSize(r, frameSize),
		exited:    exited,
		stop:      stop,
		sizes:     sizes,
		strides:   strides,
		frameSize: frameSize,
	}, nil
}

// Info 返回选中视频流的信息
func (s *FFmpegSource) Info() *StreamInfo {
	return s.info
}

// Next 读取下一帧
func (s *FFmpegSource) Next() (*v2atypes.DecodedFrame, error) {
	if s.state == stateDone {
		return nil, io.EOF
	}
	if s.state == stateReading && s.processExited() {
		s.transition(stateDraining)
	}

	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		s.transition(stateDone)
		var pe *v2atypes.PipelineError
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, v2atypes.NewError(v2atypes.ErrDecode, "read frame",
				fmt.Errorf("frame %d truncated: %w", s.index, err))
		case errors.As(err, &pe):
			return nil, err
		default:
			return nil, v2atypes.NewError(v2atypes.ErrDecode, "read frame", err)
		}
	}

	frame := &v2atypes.DecodedFrame{
		Index:   s.index,
		Width:   s.info.Width,
		Height:  s.info.Height,
		Format:  s.info.Format,
		Planes:  make([][]byte, len(s.sizes)),
		Strides: s.strides,
	}
	offset := 0
	for i, size := range s.sizes {
		frame.Planes[i] = buf[offset : offset+size]
		offset += size
	}
	s.index++
	return frame, nil
}

// Close 停止解码进程，可重复调用
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.state = stateDone
	})
	return nil
}

func (s *FFmpegSource) processExited() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *FFmpegSource) transition(next state) {
	if s.state == next {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "FFmpegSource.transition",
		"from":     s.state.String(),
		"to":       next.String(),
		"frames":   s.index,
	}).Debug("Decode source state changed")
	s.state = next
}

// BinaryOption 指定 ffmpeg 可执行文件；path 为空时使用 PATH 中的 ffmpeg
func BinaryOption(path string) (ffmpeg.CompilationOption, error) {
	if path == "" {
		return func(s *ffmpeg.Stream, cmd *exec.Cmd) {}, nil
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, err
	}
	return func(s *ffmpeg.Stream, cmd *exec.Cmd) {
		cmd.Path = resolved
		cmd.Args[0] = resolved
		cmd.Err = nil
	}, nil
}

// StderrTail 取 ffmpeg 错误输出的最后几行
func StderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

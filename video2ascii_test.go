package main

import (
	"context"
	"errors"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2ascii/config"
	v2atypes "video2ascii/type"
)

// fakeSource 按顺序返回预先准备的帧或错误
type fakeSource struct {
	frames []*v2atypes.DecodedFrame
	err    error // 帧耗尽后返回；nil 时返回 io.EOF
	next   int
	closed int
}

func (s *fakeSource) Next() (*v2atypes.DecodedFrame, error) {
	if s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++
		return f, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

type fakeEncoder struct {
	calls     int
	framesDir string
	output    string
	err       error
}

func (e *fakeEncoder) Encode(ctx context.Context, framesDir, outputPath string) error {
	e.calls++
	e.framesDir = framesDir
	e.output = outputPath
	return e.err
}

func solidFrame(index, w, h int, v byte) *v2atypes.DecodedFrame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return &v2atypes.DecodedFrame{
		Index:   index,
		Width:   w,
		Height:  h,
		Format:  v2atypes.PixelFormatRGB24,
		Planes:  [][]byte{pix},
		Strides: []int{w * 3},
	}
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func frameFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	require.NoError(t, err)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names
}

func TestPipeline_TwoMidGrayFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	p, err := NewPipeline(dir, testLog())
	require.NoError(t, err)
	defer p.Close()

	src := &fakeSource{frames: []*v2atypes.DecodedFrame{
		solidFrame(0, 64, 64, 128),
		solidFrame(1, 64, 64, 128),
	}}
	n, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"frame_0000.png", "frame_0001.png"}, frameFiles(t, dir))
	w0, h0 := imageSize(t, filepath.Join(dir, "frame_0000.png"))
	w1, h1 := imageSize(t, filepath.Join(dir, "frame_0001.png"))
	assert.Equal(t, 400, w0)
	assert.Equal(t, 500, h0)
	assert.Equal(t, w0, w1)
	assert.Equal(t, h0, h1)

	b, ok := p.Baseline()
	require.True(t, ok)
	assert.Equal(t, 100, b.RowCharCount())
	assert.Equal(t, 50, b.LineCount())

	_, err = os.Stat(filepath.Join(dir, config.TempFrameName))
	assert.NoError(t, err, "intermediate frame is reused, not removed")
}

func TestPipeline_SequentialNaming(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPipeline(dir, testLog())
	require.NoError(t, err)
	defer p.Close()

	src := &fakeSource{}
	for i := 0; i < 5; i++ {
		src.frames = append(src.frames, solidFrame(i, 32, 16, byte(i*50)))
	}
	n, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []string{
		"frame_0000.png", "frame_0001.png", "frame_0002.png", "frame_0003.png", "frame_0004.png",
	}, frameFiles(t, dir))
}

func TestPipeline_LongerLinesKeepBaseline(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPipeline(dir, testLog())
	require.NoError(t, err)
	defer p.Close()

	// 第二帧渲染为 "£"，每行 200 字节
	src := &fakeSource{frames: []*v2atypes.DecodedFrame{
		solidFrame(0, 64, 64, 128),
		solidFrame(1, 64, 64, 80),
	}}
	_, err = p.Run(context.Background(), src)
	require.NoError(t, err)

	b, ok := p.Baseline()
	require.True(t, ok)
	assert.Equal(t, 100, b.RowCharCount())

	w0, _ := imageSize(t, filepath.Join(dir, "frame_0000.png"))
	w1, _ := imageSize(t, filepath.Join(dir, "frame_0001.png"))
	assert.LessOrEqual(t, w1, w0)
}

func TestPipeline_ErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
		kind v2atypes.Kind
		done int
	}{
		{
			name: "decode_error",
			src: &fakeSource{
				frames: []*v2atypes.DecodedFrame{solidFrame(0, 16, 16, 10)},
				err:    v2atypes.NewError(v2atypes.ErrDecode, "read frame", io.ErrUnexpectedEOF),
			},
			kind: v2atypes.ErrDecode,
			done: 1,
		},
		{
			name: "conversion_error",
			src: &fakeSource{frames: []*v2atypes.DecodedFrame{
				solidFrame(0, 16, 16, 10),
				{Index: 1, Width: 16, Height: 16, Format: "p010le", Planes: [][]byte{{}}, Strides: []int{32}},
				solidFrame(2, 16, 16, 10),
			}},
			kind: v2atypes.ErrConversion,
			done: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p, err := NewPipeline(dir, testLog())
			require.NoError(t, err)
			defer p.Close()

			n, err := p.Run(context.Background(), tt.src)
			assert.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), "frame 1:")
			assert.Equal(t, tt.done, n)
			// 已写出的帧保留在磁盘上
			assert.Len(t, frameFiles(t, dir), tt.done)
		})
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	p, err := NewPipeline(t.TempDir(), testLog())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, &fakeSource{frames: []*v2atypes.DecodedFrame{solidFrame(0, 8, 8, 0)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipeline_FramesDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewPipeline(filepath.Join(file, "frames"), testLog())
	assert.ErrorIs(t, err, v2atypes.ErrIO)
}

func TestConvertVideo_EncodesAfterFrames(t *testing.T) {
	cfg := &config.Config{
		OutputFramesPath: filepath.Join(t.TempDir(), "frames"),
		OutputVideoPath:  filepath.Join(t.TempDir(), "out.mp4"),
	}
	src := &fakeSource{frames: []*v2atypes.DecodedFrame{solidFrame(0, 8, 8, 255)}}
	enc := &fakeEncoder{}

	require.NoError(t, convertVideo(context.Background(), cfg, src, enc, testLog()))
	assert.Equal(t, 1, enc.calls)
	assert.Equal(t, cfg.OutputFramesPath, enc.framesDir)
	assert.Equal(t, cfg.OutputVideoPath, enc.output)
	assert.GreaterOrEqual(t, src.closed, 1)
}

func TestConvertVideo_EncoderFailure(t *testing.T) {
	cfg := &config.Config{
		OutputFramesPath: t.TempDir(),
		OutputVideoPath:  filepath.Join(t.TempDir(), "out.mp4"),
	}
	src := &fakeSource{frames: []*v2atypes.DecodedFrame{solidFrame(0, 8, 8, 0)}}
	enc := &fakeEncoder{err: v2atypes.NewError(v2atypes.ErrSubprocess, "ffmpeg encode", errors.New("exit status 1"))}

	err := convertVideo(context.Background(), cfg, src, enc, testLog())
	assert.ErrorIs(t, err, v2atypes.ErrSubprocess)
}

func TestConvertVideo_SkipsEncodeOnFrameError(t *testing.T) {
	cfg := &config.Config{
		OutputFramesPath: t.TempDir(),
		OutputVideoPath:  filepath.Join(t.TempDir(), "out.mp4"),
	}
	src := &fakeSource{err: v2atypes.NewError(v2atypes.ErrDecode, "ffmpeg decode", errors.New("moov atom not found"))}
	enc := &fakeEncoder{}

	err := convertVideo(context.Background(), cfg, src, enc, testLog())
	assert.ErrorIs(t, err, v2atypes.ErrDecode)
	assert.Equal(t, 0, enc.calls)
	assert.Equal(t, 1, src.closed)
}

func TestRootCmd_RequiresFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"-i", "in.mp4"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output-video-path")
}

func TestRootCmd_MissingInputIsDecodeError(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"-i", filepath.Join(dir, "missing.mp4"),
		"-o", filepath.Join(dir, "out.mp4"),
		"-f", filepath.Join(dir, "frames"),
		"--log-level", "error",
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	assert.ErrorIs(t, err, v2atypes.ErrDecode)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"video2ascii/ascii2image"
	"video2ascii/colorconv"
	"video2ascii/config"
	"video2ascii/frame2image"
	"video2ascii/frames2video"
	"video2ascii/glyphscale"
	"video2ascii/image2ascii"
	v2atypes "video2ascii/type"
	"video2ascii/video2frame"
)

// Pipeline 逐帧执行：颜色转换 → 中间图 → 字符画 → 排版 → 输出图。
// 一帧完全处理完才读取下一帧。
type Pipeline struct {
	framesDir  string
	tempPath   string
	converter  *colorconv.Converter
	renderer   *image2ascii.Renderer
	compositor *ascii2image.Compositor
	baseline   *glyphscale.Baseline
	frameCount int
	log        *logrus.Entry
}

// NewPipeline 创建输出目录并加载字体
func NewPipeline(framesDir string, log *logrus.Entry) (*Pipeline, error) {
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, v2atypes.NewError(v2atypes.ErrIO, "create frames dir", err)
	}
	compositor, err := ascii2image.New()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		framesDir:  framesDir,
		tempPath:   filepath.Join(framesDir, config.TempFrameName),
		converter:  colorconv.New(0, 0),
		renderer:   image2ascii.New(),
		compositor: compositor,
		log:        log,
	}, nil
}

// Run 读取 src 直到 io.EOF，返回输出的帧数
func (p *Pipeline) Run(ctx context.Context, src video2frame.Source) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return p.frameCount, err
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.frameCount, fmt.Errorf("frame %d: %w", p.frameCount, err)
		}
		if err := p.ProcessFrame(frame); err != nil {
			return p.frameCount, fmt.Errorf("frame %d: %w", p.frameCount, err)
		}
	}

	p.log.WithField("frames", p.frameCount).Infof("Proceed %d frames", p.frameCount)
	return p.frameCount, nil
}

// ProcessFrame 处理一帧并写出 frame_%04d.png
func (p *Pipeline) ProcessFrame(frame *v2atypes.DecodedFrame) error {
	rgb, err := p.converter.Convert(frame)
	if err != nil {
		return err
	}
	if err := frame2image.Export(rgb, p.tempPath); err != nil {
		return err
	}
	grid, err := p.renderer.RenderFile(p.tempPath)
	if err != nil {
		return err
	}

	if p.baseline == nil {
		b, err := glyphscale.NewBaseline(grid)
		if err != nil {
			return err
		}
		p.baseline = &b
	}
	layout, err := p.baseline.Layout(grid)
	if err != nil {
		return err
	}

	outPath := filepath.Join(p.framesDir, ascii2image.FrameFileName(p.frameCount))
	if err := p.compositor.ComposeFile(grid, layout, outPath); err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{
		"frame":     p.frameCount,
		"lines":     grid.LineCount(),
		"max_line":  grid.MaxLineLength(),
		"font_size": layout.FontSize,
	}).Infof("Proceed frame No.%d : %s", p.frameCount, outPath)
	p.frameCount++
	return nil
}

// Baseline 第一帧之后才可用
func (p *Pipeline) Baseline() (glyphscale.Baseline, bool) {
	if p.baseline == nil {
		return glyphscale.Baseline{}, false
	}
	return *p.baseline, true
}

func (p *Pipeline) Close() error {
	return p.compositor.Close()
}

// convertVideo 逐帧生成字符画图像，再交给编码器合成视频
func convertVideo(ctx context.Context, cfg *config.Config, src video2frame.Source, enc frames2video.Encoder, log *logrus.Entry) error {
	defer src.Close()

	p, err := NewPipeline(cfg.OutputFramesPath, log)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("Converting frames to ASCII...")
	if _, err := p.Run(ctx, src); err != nil {
		return err
	}
	if err := src.Close(); err != nil {
		return err
	}

	log.Info("Encoding frames to video...")
	return enc.Encode(ctx, cfg.OutputFramesPath, cfg.OutputVideoPath)
}

// Package glyphscale 根据第一帧字符画的形状计算每帧的字号与画布尺寸。
//
// 基准（Baseline）只由第一帧计算一次，之后按值传递、不再修改。
// 后续每帧的缩放比为 基准/当前：行越长，宽度比例越小。
package glyphscale

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	v2atypes "video2ascii/type"
)

const (
	BaseFontSize = 10.0
	WidthFactor  = 0.4 // 单个字符宽度相对字号的比例
	LineSpacing  = 1.2
)

// Baseline 第一帧字符画的形状
type Baseline struct {
	rowCharCount int
	lineCount    int
}

// Layout 某一帧的排版参数
type Layout struct {
	WidthScale   float64
	HeightScale  float64
	FontSize     float64
	CanvasWidth  float64
	CanvasHeight float64
}

// NewBaseline 由第一帧建立基准
func NewBaseline(first v2atypes.AsciiGrid) (Baseline, error) {
	if err := checkShape(first); err != nil {
		return Baseline{}, err
	}
	b := Baseline{
		rowCharCount: first.MaxLineLength(),
		lineCount:    first.LineCount(),
	}
	logrus.WithFields(logrus.Fields{
		"function":       "NewBaseline",
		"row_char_count": b.rowCharCount,
		"line_count":     b.lineCount,
	}).Debug("Scaling baseline fixed from first frame")
	return b, nil
}

func (b Baseline) RowCharCount() int { return b.rowCharCount }
func (b Baseline) LineCount() int    { return b.lineCount }

// Layout 计算当前帧的缩放比、字号与画布尺寸
func (b Baseline) Layout(grid v2atypes.AsciiGrid) (Layout, error) {
	if b.rowCharCount <= 0 || b.lineCount <= 0 {
		return Layout{}, v2atypes.NewError(v2atypes.ErrScaling, "layout",
			fmt.Errorf("%w: baseline not initialized", v2atypes.ErrInvalidGridShape))
	}
	if err := checkShape(grid); err != nil {
		return Layout{}, err
	}

	maxLine := float64(grid.MaxLineLength())
	lines := float64(grid.LineCount())

	widthScale := float64(b.rowCharCount) / maxLine
	heightScale := float64(b.lineCount) / lines

	return Layout{
		WidthScale:   widthScale,
		HeightScale:  heightScale,
		FontSize:     BaseFontSize * math.Max(widthScale, heightScale),
		CanvasWidth:  maxLine * (BaseFontSize * widthScale * WidthFactor),
		CanvasHeight: lines * BaseFontSize * heightScale,
	}, nil
}

// Size 画布的像素尺寸（向零截断）
func (l Layout) Size() (width, height int) {
	return int(l.CanvasWidth), int(l.CanvasHeight)
}

// LineY 第 row 行文字顶部的 y 坐标
func LineY(row int) int {
	return int(BaseFontSize * float64(row) * LineSpacing)
}

func checkShape(grid v2atypes.AsciiGrid) error {
	if grid.LineCount() == 0 || grid.MaxLineLength() == 0 {
		return v2atypes.NewError(v2atypes.ErrScaling, "grid shape",
			fmt.Errorf("%w: %d lines, max line length %d",
				v2atypes.ErrInvalidGridShape, grid.LineCount(), grid.MaxLineLength()))
	}
	return nil
}

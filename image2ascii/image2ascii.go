// Package image2ascii 把图像映射为固定字符集的字符画。
//
// 图像先被双线性缩放到 列数 x 行数 的网格，行数按宽高比的一半计算
// （终端字符约为两倍高）。每个格子取 CIE L* 亮度：越亮字符越稀疏，越暗越密集。
package image2ascii

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	v2atypes "video2ascii/type"
)

// DefaultColumns 每行字符数
const DefaultColumns = 100

// DefaultCharset 从稀疏到密集
var DefaultCharset = []string{".", ",", "-", "*", "£", "$", "#"}

type Renderer struct {
	Columns int
	Charset []string
}

// New 使用默认列数与字符集
func New() *Renderer {
	return &Renderer{Columns: DefaultColumns, Charset: DefaultCharset}
}

// RenderFile 读取图像文件并渲染
func (r *Renderer) RenderFile(path string) (v2atypes.AsciiGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return v2atypes.AsciiGrid{}, v2atypes.NewError(v2atypes.ErrIO, "open "+path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return v2atypes.AsciiGrid{}, v2atypes.NewError(v2atypes.ErrIO, "decode "+path, err)
	}
	grid := r.Render(img)

	logrus.WithFields(logrus.Fields{
		"function": "Renderer.RenderFile",
		"path":     path,
		"lines":    grid.LineCount(),
		"max_line": grid.MaxLineLength(),
	}).Debug("Rendered ASCII grid")
	return grid, nil
}

// Render 纯映射，同一图像总是得到相同结果
func (r *Renderer) Render(img image.Image) v2atypes.AsciiGrid {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || r.Columns <= 0 || len(r.Charset) == 0 {
		return v2atypes.AsciiGrid{}
	}

	cols, rows := r.Columns, GridRows(r.Columns, b.Dx(), b.Dy())
	small := resize.Resize(uint(cols), uint(rows), img, resize.Bilinear)
	sb := small.Bounds()

	lines := make([]string, 0, rows)
	for y := sb.Min.Y; y < sb.Max.Y; y++ {
		var line strings.Builder
		for x := sb.Min.X; x < sb.Max.X; x++ {
			line.WriteString(r.glyph(lightness(small.At(x, y))))
		}
		lines = append(lines, line.String())
	}
	return v2atypes.AsciiGrid{Lines: lines}
}

// GridRows 按宽高比计算行数，至少一行
func GridRows(columns, width, height int) int {
	rows := int(math.Round(float64(columns) * float64(height) / float64(width) / 2))
	return max(rows, 1)
}

func (r *Renderer) glyph(l float64) string {
	last := len(r.Charset) - 1
	idx := int(math.Round((1 - l) * float64(last)))
	idx = min(max(idx, 0), last)
	return r.Charset[idx]
}

// lightness 返回 [0,1] 的 L*，完全透明视为黑色
func lightness(c color.Color) float64 {
	col, ok := colorful.MakeColor(c)
	if !ok {
		return 0
	}
	l, _, _ := col.Clamped().Lab()
	return math.Min(math.Max(l, 0), 1)
}

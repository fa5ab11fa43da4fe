package ascii2image

import (
	"fmt"
	"image"
	"image/png"
	"unicode/utf8"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/math/fixed"

	"video2ascii/frame2image"
	"video2ascii/glyphscale"
	v2atypes "video2ascii/type"
)

// FrameFileName 输出帧文件名，4 位补零
func FrameFileName(index int) string {
	return fmt.Sprintf("frame_%04d.png", index)
}

// Compositor 把字符画绘制到黑底白字的图像上；字体每次运行只解析一次
type Compositor struct {
	font  *truetype.Font
	faces map[float64]font.Face
}

// New 使用内嵌的 Go Mono Bold 字体
func New() (*Compositor, error) {
	return NewWithFont(gomonobold.TTF)
}

// NewWithFont 使用指定的 TrueType 字体数据
func NewWithFont(ttf []byte) (*Compositor, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, v2atypes.NewError(v2atypes.ErrFontLoad, "parse font", err)
	}
	return &Compositor{font: f, faces: make(map[float64]font.Face)}, nil
}

func (c *Compositor) face(size float64) font.Face {
	if face, ok := c.faces[size]; ok {
		return face
	}
	face := truetype.NewFace(c.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	c.faces[size] = face
	return face
}

// Compose 按 layout 分配画布并逐行绘制
func (c *Compositor) Compose(grid v2atypes.AsciiGrid, layout glyphscale.Layout) (*image.RGBA, error) {
	w, h := layout.Size()
	if w < 1 || h < 1 {
		return nil, v2atypes.NewError(v2atypes.ErrScaling, "compose",
			fmt.Errorf("%w: canvas %dx%d", v2atypes.ErrInvalidGridShape, w, h))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.Black, image.Point{}, xdraw.Src)

	size := c.GlyphSize(grid, layout)
	face := c.face(size)
	ascent := face.Metrics().Ascent
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
	}
	for i, line := range grid.Lines {
		// y 为文字顶部，基线再下移一个 ascent
		d.Dot = freetype.Pt(0, glyphscale.LineY(i))
		d.Dot.Y += ascent
		d.DrawString(line)
	}
	return img, nil
}

// GlyphSize 实际绘制用的字号：不超过 layout.FontSize，且最长一行（按字符数）不超出画布宽度。
// 等宽字体的字宽约为 0.6 em，而画布按 0.4 em 分配，所以通常需要缩小。
func (c *Compositor) GlyphSize(grid v2atypes.AsciiGrid, layout glyphscale.Layout) float64 {
	size := layout.FontSize
	widest := ""
	for _, line := range grid.Lines {
		if utf8.RuneCountInString(line) > utf8.RuneCountInString(widest) {
			widest = line
		}
	}
	w, _ := layout.Size()
	// 每个字符留 1/64 像素余量，抵消字形缓冲区的舍入
	limit := fixed.I(w) - fixed.Int26_6(utf8.RuneCountInString(widest))
	if widest == "" || size <= 0 || limit <= 0 {
		return size
	}

	for i := 0; i < 8; i++ {
		adv := c.lineAdvance(size, widest)
		if adv <= limit {
			return size
		}
		size *= float64(limit) / float64(adv) * 0.999
	}
	return size
}

// lineAdvance 按字体度量计算一行在 size 下的宽度，不创建 face
func (c *Compositor) lineAdvance(size float64, line string) fixed.Int26_6 {
	scale := fixed.Int26_6(0.5 + size*64) // DPI 72
	var total fixed.Int26_6
	for _, r := range line {
		total += c.font.HMetric(scale, c.font.Index(r)).AdvanceWidth
	}
	return total
}

// ComposeFile 绘制并保存为 PNG
func (c *Compositor) ComposeFile(grid v2atypes.AsciiGrid, layout glyphscale.Layout, path string) error {
	img, err := c.Compose(grid, layout)
	if err != nil {
		return err
	}
	if err := frame2image.SavePNG(path, img, png.DefaultCompression); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function":   "Compositor.ComposeFile",
		"path":       path,
		"width":      img.Bounds().Dx(),
		"height":     img.Bounds().Dy(),
		"font_size":  layout.FontSize,
		"glyph_size": c.GlyphSize(grid, layout),
	}).Debug("Wrote ASCII frame")
	return nil
}

// Close 释放缓存的字体
func (c *Compositor) Close() error {
	for size, face := range c.faces {
		face.Close()
		delete(c.faces, size)
	}
	return nil
}

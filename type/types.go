package v2atypes

import (
	"fmt"
	"image"
	"strings"
)

// PixelFormat 解码源输出的原始像素格式（与 ffmpeg 的 pix_fmt 名称一致）
type PixelFormat string

const (
	PixelFormatRGB24   PixelFormat = "rgb24"
	PixelFormatBGR24   PixelFormat = "bgr24"
	PixelFormatRGBA    PixelFormat = "rgba"
	PixelFormatGray    PixelFormat = "gray"
	PixelFormatYUV420P PixelFormat = "yuv420p"
	PixelFormatNV12    PixelFormat = "nv12"
)

// Supported 是否为可直接转换的格式
func (f PixelFormat) Supported() bool {
	switch f {
	case PixelFormatRGB24, PixelFormatBGR24, PixelFormatRGBA, PixelFormatGray,
		PixelFormatYUV420P, PixelFormatNV12:
		return true
	}
	return false
}

// PlaneLayout 返回紧密排列时每个平面的字节数与行跨度
func (f PixelFormat) PlaneLayout(width, height int) (sizes, strides []int, err error) {
	if width <= 0 || height <= 0 {
		return nil, nil, NewError(ErrConversion, "plane layout", fmt.Errorf("invalid frame size %dx%d", width, height))
	}
	cw, ch := (width+1)/2, (height+1)/2
	switch f {
	case PixelFormatRGB24, PixelFormatBGR24:
		return []int{width * 3 * height}, []int{width * 3}, nil
	case PixelFormatRGBA:
		return []int{width * 4 * height}, []int{width * 4}, nil
	case PixelFormatGray:
		return []int{width * height}, []int{width}, nil
	case PixelFormatYUV420P:
		return []int{width * height, cw * ch, cw * ch}, []int{width, cw, cw}, nil
	case PixelFormatNV12:
		return []int{width * height, cw * 2 * ch}, []int{width, cw * 2}, nil
	}
	return nil, nil, NewError(ErrConversion, "plane layout", fmt.Errorf("unsupported pixel format %q", string(f)))
}

// FrameSize 一帧原始数据的总字节数
func (f PixelFormat) FrameSize(width, height int) (int, error) {
	sizes, _, err := f.PlaneLayout(width, height)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	return total, nil
}

// DecodedFrame 解码器输出的一帧，颜色转换后即丢弃
type DecodedFrame struct {
	Index   int
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [][]byte
	Strides []int
}

// RGBImage 紧密的 RGB24 缓冲区，按 [y*Stride + x*3] 寻址，创建后不再修改
type RGBImage struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewRGBImage 分配一块全黑的 RGB 缓冲区
func NewRGBImage(width, height int) *RGBImage {
	return &RGBImage{
		Width:  width,
		Height: height,
		Stride: width * 3,
		Pix:    make([]byte, width*3*height),
	}
}

// AsciiGrid 一帧的字符画，每行一个字符串
type AsciiGrid struct {
	Lines []string
}

// LineCount 行数
func (g AsciiGrid) LineCount() int {
	return len(g.Lines)
}

// MaxLineLength 最长行的字节数（UTF-8 编码，"£" 计为 2）
func (g AsciiGrid) MaxLineLength() int {
	longest := 0
	for _, line := range g.Lines {
		longest = max(longest, len(line))
	}
	return longest
}

// String 以换行连接所有行
func (g AsciiGrid) String() string {
	var b strings.Builder
	for _, line := range g.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Frame 表示一帧输出图像
type Frame struct {
	Index int
	Image image.Image
}

// Package colorconv 把解码帧的原生像素格式转换为紧密的 RGB24 缓冲区。
//
// 所有平面读取都做越界检查：数据不足的像素保持黑色，不会 panic。
// 目标尺寸与源不同时使用双线性插值缩放。
package colorconv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"

	v2atypes "video2ascii/type"
)

// Converter 固定质量的格式转换器
type Converter struct {
	dstWidth  int
	dstHeight int
	scaler    xdraw.Scaler
}

// New 创建转换器；宽高为 0 时保持源尺寸
func New(dstWidth, dstHeight int) *Converter {
	return &Converter{
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		scaler:    xdraw.BiLinear,
	}
}

// Convert 将一帧转换为 RGB24
func (c *Converter) Convert(frame *v2atypes.DecodedFrame) (*v2atypes.RGBImage, error) {
	if frame == nil {
		return nil, v2atypes.NewError(v2atypes.ErrConversion, "convert", fmt.Errorf("nil frame"))
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, v2atypes.NewError(v2atypes.ErrConversion, "convert",
			fmt.Errorf("invalid frame size %dx%d", frame.Width, frame.Height))
	}
	if !frame.Format.Supported() {
		return nil, v2atypes.NewError(v2atypes.ErrConversion, "convert",
			fmt.Errorf("unsupported pixel format %q", string(frame.Format)))
	}
	if len(frame.Planes) != len(frame.Strides) || len(frame.Planes) < planeCount(frame.Format) {
		return nil, v2atypes.NewError(v2atypes.ErrConversion, "convert",
			fmt.Errorf("%s frame needs %d planes, got %d", frame.Format, planeCount(frame.Format), len(frame.Planes)))
	}

	rgb := v2atypes.NewRGBImage(frame.Width, frame.Height)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			r, g, b, ok := sample(frame, x, y)
			if !ok {
				continue
			}
			i := y*rgb.Stride + x*3
			rgb.Pix[i], rgb.Pix[i+1], rgb.Pix[i+2] = r, g, b
		}
	}

	dw, dh := c.dstWidth, c.dstHeight
	if dw <= 0 {
		dw = frame.Width
	}
	if dh <= 0 {
		dh = frame.Height
	}
	if dw == frame.Width && dh == frame.Height {
		return rgb, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Converter.Convert",
		"frame":    frame.Index,
		"from":     fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		"to":       fmt.Sprintf("%dx%d", dw, dh),
	}).Debug("Resampling frame")
	return c.resample(rgb, dw, dh), nil
}

// resample 双线性缩放
func (c *Converter) resample(src *v2atypes.RGBImage, dw, dh int) *v2atypes.RGBImage {
	srcImg := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			i := y*src.Stride + x*3
			srcImg.SetRGBA(x, y, color.RGBA{R: src.Pix[i], G: src.Pix[i+1], B: src.Pix[i+2], A: 255})
		}
	}

	dstImg := image.NewRGBA(image.Rect(0, 0, dw, dh))
	c.scaler.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), xdraw.Src, nil)

	out := v2atypes.NewRGBImage(dw, dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			p := dstImg.RGBAAt(x, y)
			i := y*out.Stride + x*3
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = p.R, p.G, p.B
		}
	}
	return out
}

func planeCount(f v2atypes.PixelFormat) int {
	switch f {
	case v2atypes.PixelFormatYUV420P:
		return 3
	case v2atypes.PixelFormatNV12:
		return 2
	default:
		return 1
	}
}

// sample 读取 (x, y) 处的颜色，任一平面越界时返回 ok=false
func sample(f *v2atypes.DecodedFrame, x, y int) (r, g, b uint8, ok bool) {
	switch f.Format {
	case v2atypes.PixelFormatRGB24, v2atypes.PixelFormatBGR24:
		i := y*f.Strides[0] + x*3
		if i+2 >= len(f.Planes[0]) {
			return 0, 0, 0, false
		}
		p := f.Planes[0]
		if f.Format == v2atypes.PixelFormatBGR24 {
			return p[i+2], p[i+1], p[i], true
		}
		return p[i], p[i+1], p[i+2], true

	case v2atypes.PixelFormatRGBA:
		i := y*f.Strides[0] + x*4
		if i+3 >= len(f.Planes[0]) {
			return 0, 0, 0, false
		}
		p := f.Planes[0]
		return p[i], p[i+1], p[i+2], true

	case v2atypes.PixelFormatGray:
		i := y*f.Strides[0] + x
		if i >= len(f.Planes[0]) {
			return 0, 0, 0, false
		}
		v := f.Planes[0][i]
		return v, v, v, true

	case v2atypes.PixelFormatYUV420P:
		yi := y*f.Strides[0] + x
		ci := (y/2)*f.Strides[1] + x/2
		vi := (y/2)*f.Strides[2] + x/2
		if yi >= len(f.Planes[0]) || ci >= len(f.Planes[1]) || vi >= len(f.Planes[2]) {
			return 0, 0, 0, false
		}
		r, g, b = limitedYCbCrToRGB(f.Planes[0][yi], f.Planes[1][ci], f.Planes[2][vi])
		return r, g, b, true

	case v2atypes.PixelFormatNV12:
		yi := y*f.Strides[0] + x
		ci := (y/2)*f.Strides[1] + (x/2)*2
		if yi >= len(f.Planes[0]) || ci+1 >= len(f.Planes[1]) {
			return 0, 0, 0, false
		}
		r, g, b = limitedYCbCrToRGB(f.Planes[0][yi], f.Planes[1][ci], f.Planes[1][ci+1])
		return r, g, b, true
	}
	return 0, 0, 0, false
}

// limitedYCbCrToRGB BT.601 有限范围（Y 16-235，C 16-240）转 RGB，与 swscale 默认一致。
// 系数为 8 位定点：1.164=298/256，1.596=409/256，0.391=100/256，0.813=208/256，2.018=516/256
func limitedYCbCrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	c := 298 * (int32(y) - 16)
	d := int32(cb) - 128
	e := int32(cr) - 128
	r := (c + 409*e + 128) >> 8
	g := (c - 100*d - 208*e + 128) >> 8
	b := (c + 516*d + 128) >> 8
	return clamp8(r), clamp8(g), clamp8(b)
}

func clamp8(v int32) uint8 {
	return uint8(min(max(v, 0), 255))
}

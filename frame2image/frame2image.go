package frame2image

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/sirupsen/logrus"

	v2atypes "video2ascii/type"
)

// ToImage 把 RGB 缓冲区包装成 RGBA 图像；越界的像素跳过，保持透明黑
func ToImage(rgb *v2atypes.RGBImage) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, rgb.Width, rgb.Height))
	for y := 0; y < rgb.Height; y++ {
		for x := 0; x < rgb.Width; x++ {
			i := y*rgb.Stride + x*3
			if i+2 >= len(rgb.Pix) {
				continue
			}
			img.SetRGBA(x, y, color.RGBA{R: rgb.Pix[i], G: rgb.Pix[i+1], B: rgb.Pix[i+2], A: 255})
		}
	}
	return img
}

// Export 将帧写到固定的中间文件，每帧覆盖
func Export(rgb *v2atypes.RGBImage, path string) error {
	if rgb == nil {
		return v2atypes.NewError(v2atypes.ErrIO, "export frame", fmt.Errorf("nil image"))
	}
	if err := SavePNG(path, ToImage(rgb), png.BestSpeed); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Export",
		"path":     path,
	}).Debug("Wrote intermediate frame")
	return nil
}

// SavePNG 编码并写入 PNG 文件
func SavePNG(path string, img image.Image, level png.CompressionLevel) error {
	f, err := os.Create(path)
	if err != nil {
		return v2atypes.NewError(v2atypes.ErrIO, "create "+path, err)
	}

	bw := bufio.NewWriterSize(f, 1<<16)
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(bw, img); err != nil {
		f.Close()
		return v2atypes.NewError(v2atypes.ErrIO, "encode "+path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return v2atypes.NewError(v2atypes.ErrIO, "write "+path, err)
	}
	if err := f.Close(); err != nil {
		return v2atypes.NewError(v2atypes.ErrIO, "close "+path, err)
	}
	return nil
}

package video2frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	v2atypes "video2ascii/type"
)

// VideoProbe 只关心视频流
type VideoProbe struct {
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		PixFmt       string `json:"pix_fmt"`
		NbFrames     string `json:"nb_frames"`      // 有些视频是字符串
		AvgFrameRate string `json:"avg_frame_rate"` // fallback
		Duration     string `json:"duration"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// StreamInfo 选中视频流的信息
type StreamInfo struct {
	Index      int
	CodecName  string
	Width      int
	Height     int
	PixFmt     string               // 流的原生像素格式
	Format     v2atypes.PixelFormat // 解码输出使用的格式
	FrameCount int                  // 估算值，未知时为 0
	FrameRate  float64
}

// ProbeVideo 用 ffprobe 读取输入并选出最佳视频流；ffprobePath 为空时使用 PATH 中的 ffprobe
func ProbeVideo(videoPath, ffprobePath string) (*StreamInfo, error) {
	probeStr, err := runProbe(videoPath, ffprobePath)
	if err != nil {
		return nil, v2atypes.NewError(v2atypes.ErrDecode, "probe "+videoPath, err)
	}
	info, err := parseProbe(probeStr)
	if err != nil {
		return nil, v2atypes.NewError(v2atypes.ErrDecode, "probe "+videoPath, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "ProbeVideo",
		"path":        videoPath,
		"ffprobe":     ffprobePath,
		"stream":      info.Index,
		"codec":       info.CodecName,
		"pix_fmt":     info.PixFmt,
		"frame_count": info.FrameCount,
	}).Debug("Probed input video")
	return info, nil
}

// runProbe ffmpeg.Probe 只会执行 PATH 中的 ffprobe，指定路径时按相同参数直接调用
func runProbe(videoPath, ffprobePath string) (string, error) {
	if ffprobePath == "" {
		return ffmpeg.Probe(videoPath)
	}
	stderr := &bytes.Buffer{}
	cmd := exec.Command(ffprobePath, "-show_format", "-show_streams", "-of", "json", videoPath)
	cmd.Stderr = stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, StderrTail(stderr.String()))
	}
	return string(out), nil
}

// ProbePath 返回与 ffmpeg 同目录的 ffprobe；ffmpegPath 为空或同目录没有 ffprobe 时返回空字符串
func ProbePath(ffmpegPath string) string {
	if ffmpegPath == "" {
		return ""
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return ""
	}
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	candidate, err := exec.LookPath(filepath.Join(filepath.Dir(resolved), name))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ProbePath",
			"ffmpeg":   resolved,
		}).Warn("No ffprobe next to ffmpeg, using ffprobe from PATH")
		return ""
	}
	return candidate
}

// parseProbe 解析 ffprobe 的 JSON 输出
func parseProbe(probeStr string) (*StreamInfo, error) {
	var probe VideoProbe
	if err := json.Unmarshal([]byte(probeStr), &probe); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}

	var best *StreamInfo
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" || stream.Disposition.AttachedPic != 0 {
			continue
		}
		if stream.Width <= 0 || stream.Height <= 0 {
			continue
		}
		// 面积最大者优先，相同时取索引较小的
		if best != nil && stream.Width*stream.Height <= best.Width*best.Height {
			continue
		}
		rate := parseRate(stream.AvgFrameRate)
		best = &StreamInfo{
			Index:      stream.Index,
			CodecName:  stream.CodecName,
			Width:      stream.Width,
			Height:     stream.Height,
			PixFmt:     stream.PixFmt,
			Format:     outputFormat(stream.PixFmt),
			FrameCount: totalFrames(stream.NbFrames, rate, stream.Duration),
			FrameRate:  rate,
		}
	}
	if best == nil {
		return nil, v2atypes.ErrNoVideoStream
	}
	return best, nil
}

// outputFormat 原生格式可直接转换时保留，否则让 ffmpeg 输出 yuv420p
func outputFormat(pixFmt string) v2atypes.PixelFormat {
	f := v2atypes.PixelFormat(pixFmt)
	if f.Supported() {
		return f
	}
	return v2atypes.PixelFormatYUV420P
}

// totalFrames nb_frames 存在则直接使用，否则用 avg_frame_rate * duration 估算
func totalFrames(nbFrames string, rate float64, duration string) int {
	if nbFrames != "" && nbFrames != "0" {
		if n, err := strconv.Atoi(nbFrames); err == nil {
			return n
		}
	}
	d, err := strconv.ParseFloat(duration, 64)
	if err != nil || rate <= 0 {
		return 0
	}
	return int(rate * d)
}

// parseRate 解析 "30000/1001" 形式的帧率
func parseRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

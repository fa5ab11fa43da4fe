package v2atypes

import (
	"errors"
	"fmt"
)

// Kind 错误分类，可直接与 errors.Is 比较
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrDecode     Kind = "DecodeError"
	ErrConversion Kind = "ConversionError"
	ErrIO         Kind = "IOError"
	ErrFontLoad   Kind = "FontLoadError"
	ErrScaling    Kind = "ScalingError"
	ErrSubprocess Kind = "SubprocessError"
)

var (
	// ErrInvalidGridShape 字符画为零行或最长行长度为零
	ErrInvalidGridShape = errors.New("invalid grid shape")

	// ErrNoVideoStream 输入中没有可用的视频流
	ErrNoVideoStream = errors.New("no video stream found")

	// ErrFrameGap 输出帧序列不连续
	ErrFrameGap = errors.New("gap in frame sequence")

	// ErrNoFrames 帧目录中没有输出帧
	ErrNoFrames = errors.New("no frames to encode")
)

// PipelineError 带分类与操作上下文的错误
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap 同时暴露分类与底层原因
func (e *PipelineError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewError 创建 PipelineError
func NewError(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf 取出错误链上的分类
func KindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrUnsupportedDocumentKind = errors.New("不支持的文档类型")
	ErrEmptyDocument           = errors.New("文档内容为空")
	ErrCorruptDocument         = errors.New("文档已损坏或无法解析")
	ErrNoExtractableText       = errors.New("文档没有可用的文本层")
	ErrExtractionFailed        = errors.New("字段提取失败")
	ErrStoreFailed             = errors.New("记录存储失败")
)

// ProcessError 包含详细错误信息的自定义错误
type ProcessError struct {
	FileName string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *ProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.FileName, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.FileName)
}

func (e *ProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewUnsupportedKindError(fileName, detail string) error {
	return &ProcessError{
		FileName: fileName,
		Op:       "classify",
		BaseErr:  ErrUnsupportedDocumentKind,
		Detail:   detail,
	}
}

func NewEmptyDocumentError(fileName string) error {
	return &ProcessError{
		FileName: fileName,
		Op:       "classify",
		BaseErr:  ErrEmptyDocument,
	}
}

func NewCorruptDocumentError(fileName, detail string) error {
	return &ProcessError{
		FileName: fileName,
		Op:       "parse",
		BaseErr:  ErrCorruptDocument,
		Detail:   detail,
	}
}

func NewStoreError(fileName, detail string) error {
	return &ProcessError{
		FileName: fileName,
		Op:       "store",
		BaseErr:  ErrStoreFailed,
		Detail:   detail,
	}
}

// ExtractionFailure 两条提取路径都失败时的聚合错误，同时保留两个原因
type ExtractionFailure struct {
	FileName    string
	PrimaryErr  error // 首选策略的失败原因
	FallbackErr error // 回退策略的失败原因，未尝试回退时为nil
}

func (e *ExtractionFailure) Error() string {
	if e.FallbackErr == nil {
		return fmt.Sprintf("%s (文件:%s): %v", ErrExtractionFailed, e.FileName, e.PrimaryErr)
	}
	return fmt.Sprintf("%s (文件:%s): 首选策略: %v; 回退策略: %v", ErrExtractionFailed, e.FileName, e.PrimaryErr, e.FallbackErr)
}

func (e *ExtractionFailure) Unwrap() error {
	return ErrExtractionFailed
}

func (e *ExtractionFailure) Is(target error) bool {
	return errors.Is(ErrExtractionFailed, target) ||
		errors.Is(e.PrimaryErr, target) ||
		(e.FallbackErr != nil && errors.Is(e.FallbackErr, target))
}

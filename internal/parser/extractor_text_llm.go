package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/Rahul9182/Resume-screener/internal/tracing"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// TextStructuredExtractor 把已提取的简历纯文本交给LLM做结构化字段提取
type TextStructuredExtractor struct {
	llmModel model.ToolCallingChatModel

	promptTemplate string
	maxRetries     int
	retryWait      time.Duration
	timeout        time.Duration

	logger *log.Logger
}

// TextExtractorOption 文本提取器的配置选项
type TextExtractorOption func(*TextStructuredExtractor)

// WithTextExtractorRetries 设置重试策略
func WithTextExtractorRetries(maxRetries int, retryWait time.Duration) TextExtractorOption {
	return func(e *TextStructuredExtractor) {
		if maxRetries >= 0 {
			e.maxRetries = maxRetries
		}
		if retryWait > 0 {
			e.retryWait = retryWait
		}
	}
}

// WithTextExtractorTimeout 设置单次模型调用超时
func WithTextExtractorTimeout(timeout time.Duration) TextExtractorOption {
	return func(e *TextStructuredExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithTextExtractorPrompt 覆盖默认提示词模板
func WithTextExtractorPrompt(prompt string) TextExtractorOption {
	return func(e *TextStructuredExtractor) {
		if prompt != "" {
			e.promptTemplate = prompt
		}
	}
}

// NewTextStructuredExtractor 创建文本结构化提取器
func NewTextStructuredExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...TextExtractorOption) *TextStructuredExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	extractor := &TextStructuredExtractor{
		llmModel:   llmModel,
		logger:     logger,
		maxRetries: 1,
		retryWait:  2 * time.Second,
		timeout:    90 * time.Second,
	}

	for _, opt := range options {
		opt(extractor)
	}

	if extractor.promptTemplate == "" {
		extractor.promptTemplate = generateExtractionPrompt()
	}

	return extractor
}

// Extract 从简历纯文本中提取字段
func (e *TextStructuredExtractor) Extract(ctx context.Context, text string) (types.RawFields, error) {
	messages := []*einoschema.Message{
		{Role: einoschema.System, Content: e.promptTemplate},
		{Role: einoschema.User, Content: text},
	}

	e.logger.Printf("[文本提取器] 输入文本 %d 个字符", len(text))

	response, err := callModel(ctx, e.llmModel, messages, e.logger, e.maxRetries, e.retryWait, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("文本结构化提取失败: %w", err)
	}

	fields, err := parseRawFields(response)
	if err != nil {
		e.logger.Printf("[文本提取器] 响应解析失败，原始响应: %s", tracing.SafeModelOutput(response))
		return nil, err
	}

	return fields, nil
}

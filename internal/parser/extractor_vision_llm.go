package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/Rahul9182/Resume-screener/internal/tracing"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// VisionExtractor 把整份简历的页面图像交给多模态LLM做结构化字段提取。
// 所有页面在一次调用中发送，模型在完整上下文下提取字段。
type VisionExtractor struct {
	llmModel model.ToolCallingChatModel

	promptTemplate string
	maxRetries     int
	retryWait      time.Duration
	timeout        time.Duration
	imageDetail    einoschema.ImageURLDetail

	logger *log.Logger
}

// VisionExtractorOption 视觉提取器的配置选项
type VisionExtractorOption func(*VisionExtractor)

// WithVisionExtractorRetries 设置重试策略
func WithVisionExtractorRetries(maxRetries int, retryWait time.Duration) VisionExtractorOption {
	return func(e *VisionExtractor) {
		if maxRetries >= 0 {
			e.maxRetries = maxRetries
		}
		if retryWait > 0 {
			e.retryWait = retryWait
		}
	}
}

// WithVisionExtractorTimeout 设置单次模型调用超时
func WithVisionExtractorTimeout(timeout time.Duration) VisionExtractorOption {
	return func(e *VisionExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithImageDetail 设置图像细节级别 (low/high/auto)
func WithImageDetail(detail einoschema.ImageURLDetail) VisionExtractorOption {
	return func(e *VisionExtractor) {
		if detail != "" {
			e.imageDetail = detail
		}
	}
}

// NewVisionExtractor 创建视觉提取器
func NewVisionExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...VisionExtractorOption) *VisionExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	extractor := &VisionExtractor{
		llmModel:    llmModel,
		logger:      logger,
		maxRetries:  1,
		retryWait:   2 * time.Second,
		timeout:     120 * time.Second,
		imageDetail: einoschema.ImageURLDetailHigh,
	}

	for _, opt := range options {
		opt(extractor)
	}

	if extractor.promptTemplate == "" {
		extractor.promptTemplate = generateExtractionPrompt()
	}

	return extractor
}

// Extract 从页面图像序列中提取字段，pages必须属于同一份简历且按页序排列
func (e *VisionExtractor) Extract(ctx context.Context, pages []types.PageImage) (types.RawFields, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("视觉提取需要至少一页图像")
	}

	parts := make([]einoschema.ChatMessagePart, 0, len(pages)+1)
	parts = append(parts, einoschema.ChatMessagePart{
		Type: einoschema.ChatMessagePartTypeText,
		Text: fmt.Sprintf("The following %d image(s) are the pages of a single resume, in order. Extract the fields from the whole document.", len(pages)),
	})

	for _, page := range pages {
		parts = append(parts, einoschema.ChatMessagePart{
			Type: einoschema.ChatMessagePartTypeImageURL,
			ImageURL: &einoschema.ChatMessageImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(page.JPEG),
				Detail: e.imageDetail,
			},
		})
	}

	messages := []*einoschema.Message{
		{Role: einoschema.System, Content: e.promptTemplate},
		{Role: einoschema.User, MultiContent: parts},
	}

	e.logger.Printf("[视觉提取器] 发送 %d 页图像", len(pages))

	response, err := callModel(ctx, e.llmModel, messages, e.logger, e.maxRetries, e.retryWait, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("视觉提取失败: %w", err)
	}

	fields, err := parseRawFields(response)
	if err != nil {
		e.logger.Printf("[视觉提取器] 响应解析失败，原始响应: %s", tracing.SafeModelOutput(response))
		return nil, err
	}

	return fields, nil
}

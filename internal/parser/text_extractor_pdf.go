package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// PDFTextExtractor 使用 Eino PDF Parser 提取PDF文本层
type PDFTextExtractor struct {
	parser  *pdf.PDFParser
	logger  *log.Logger
	timeout time.Duration
}

// PDFTextOption PDF提取器的配置选项
type PDFTextOption func(*PDFTextExtractor)

// WithPDFLogger 配置自定义日志记录器
func WithPDFLogger(logger *log.Logger) PDFTextOption {
	return func(e *PDFTextExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPDFTimeout 配置单次解析超时
func WithPDFTimeout(timeout time.Duration) PDFTextOption {
	return func(e *PDFTextExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewPDFTextExtractor 初始化PDF文本提取器
// 配置为不按页面分割，以获取整个文档的连续文本
func NewPDFTextExtractor(ctx context.Context, options ...PDFTextOption) (*PDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}

	extractor := &PDFTextExtractor{
		parser:  p,
		logger:  log.New(os.Stderr, "[PDF解析器] ", log.LstdFlags),
		timeout: 30 * time.Second,
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// ExtractText 从字节数组提取文本内容，uri仅用于日志和解析器元数据
func (e *PDFTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	return e.extractFromReader(ctx, bytes.NewReader(data), uri)
}

// ExtractTextFromFile 从PDF文件提取文本内容
func (e *PDFTextExtractor) ExtractTextFromFile(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("打开PDF文件 %s 失败: %w", filePath, err)
	}
	defer file.Close()

	return e.extractFromReader(ctx, file, filePath)
}

func (e *PDFTextExtractor) extractFromReader(ctx context.Context, reader io.Reader, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]interface{}{
			"source_uri":      uri,
			"extraction_time": time.Now().Format(time.RFC3339),
		}),
	)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF文本提取失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", fmt.Errorf("PDF解析失败 (URI %s): %w", uri, err)
	}

	if len(docs) == 0 {
		return "", fmt.Errorf("PDF解析器未返回任何文档 (URI %s)", uri)
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var fullContent string
	for i, doc := range docs {
		fullContent += doc.Content
		if i < len(docs)-1 {
			fullContent += "\n\n"
		}
	}

	e.logger.Printf("PDF文本提取完成: 提取了 %d 个字符 (用时 %.2f秒)", len(fullContent), duration.Seconds())
	return fullContent, nil
}

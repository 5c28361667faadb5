package parser

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log"

	"github.com/gen2brain/go-fitz"

	"github.com/Rahul9182/Resume-screener/internal/types"
)

// PageRasterizer 将PDF逐页渲染为JPEG位图，供视觉提取使用
type PageRasterizer struct {
	dpi      float64
	quality  int
	maxPages int
	logger   *log.Logger
}

// RasterizerOption 渲染器的配置选项
type RasterizerOption func(*PageRasterizer)

// WithRenderDPI 配置渲染分辨率
func WithRenderDPI(dpi int) RasterizerOption {
	return func(r *PageRasterizer) {
		if dpi > 0 {
			r.dpi = float64(dpi)
		}
	}
}

// WithJPEGQuality 配置JPEG压缩质量(1-100)
func WithJPEGQuality(quality int) RasterizerOption {
	return func(r *PageRasterizer) {
		if quality > 0 && quality <= 100 {
			r.quality = quality
		}
	}
}

// WithMaxPages 配置单份文档最多渲染的页数，超出的页被丢弃
func WithMaxPages(maxPages int) RasterizerOption {
	return func(r *PageRasterizer) {
		if maxPages > 0 {
			r.maxPages = maxPages
		}
	}
}

// WithRasterizerLogger 配置自定义日志记录器
func WithRasterizerLogger(logger *log.Logger) RasterizerOption {
	return func(r *PageRasterizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewPageRasterizer 创建页面渲染器
func NewPageRasterizer(options ...RasterizerOption) *PageRasterizer {
	r := &PageRasterizer{
		dpi:      150,
		quality:  85,
		maxPages: 10,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RasterizePDF 将PDF字节流渲染为页面图像序列，页码从1开始。
// 空文档（0页）返回错误，渲染页数受maxPages限制。
func (r *PageRasterizer) RasterizePDF(ctx context.Context, data []byte, uri string) ([]types.PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("打开PDF文档失败 (URI %s): %w", uri, err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF文档没有任何页面 (URI %s)", uri)
	}

	renderPages := numPages
	if renderPages > r.maxPages {
		r.logger.Printf("文档共 %d 页，超出上限，仅渲染前 %d 页 (URI: %s)", numPages, r.maxPages, uri)
		renderPages = r.maxPages
	}

	pages := make([]types.PageImage, 0, renderPages)
	for n := 0; n < renderPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(n, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("渲染第 %d 页失败 (URI %s): %w", n+1, uri, err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
			return nil, fmt.Errorf("编码第 %d 页JPEG失败: %w", n+1, err)
		}

		bounds := img.Bounds()
		pages = append(pages, types.PageImage{
			PageNumber: n + 1,
			JPEG:       buf.Bytes(),
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	r.logger.Printf("页面渲染完成: %d 页 (URI: %s)", len(pages), uri)
	return pages, nil
}

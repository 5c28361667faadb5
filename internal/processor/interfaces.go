package processor

import (
	"context"

	"github.com/Rahul9182/Resume-screener/internal/types"
)

//
// 文档解析相关接口
//

// TextExtractor 从文档字节流中提取纯文本
type TextExtractor interface {
	// ExtractText 提取文本内容，uri仅用于日志和溯源
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// PageRasterizer 将文档逐页渲染为位图
type PageRasterizer interface {
	RasterizePDF(ctx context.Context, data []byte, uri string) ([]types.PageImage, error)
}

//
// 字段提取相关接口
//

// TextFieldExtractor 从简历纯文本中提取结构化字段
type TextFieldExtractor interface {
	Extract(ctx context.Context, text string) (types.RawFields, error)
}

// VisionFieldExtractor 从页面图像中提取结构化字段
type VisionFieldExtractor interface {
	Extract(ctx context.Context, pages []types.PageImage) (types.RawFields, error)
}

//
// 存储相关接口
//

// RecordStore 候选人记录的持久化接口
type RecordStore interface {
	// Append 按身份键合并写入，返回最终落盘的记录以及是否合并了已有记录
	Append(ctx context.Context, record *types.CandidateRecord) (*types.CandidateRecord, bool, error)
}

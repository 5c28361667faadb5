package processor

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Rahul9182/Resume-screener/internal/agent"
	"github.com/Rahul9182/Resume-screener/internal/constants"
	"github.com/Rahul9182/Resume-screener/internal/logger"
	"github.com/Rahul9182/Resume-screener/internal/parser"
	"github.com/Rahul9182/Resume-screener/internal/tracing"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

var tracer = otel.Tracer("processor")

// Components 编排器依赖的外部组件
type Components struct {
	PDFText    TextExtractor
	DOCXText   TextExtractor
	Rasterizer PageRasterizer
	TextLLM    TextFieldExtractor
	VisionLLM  VisionFieldExtractor
	Normalizer *Normalizer
	Store      RecordStore
}

// Settings 编排器的行为参数
type Settings struct {
	// MinTextLength 低于该字符数的文本层视为无效
	MinTextLength int
}

// Orchestrator 单份文档的提取编排器。
// PDF优先走视觉路径，视觉路径因瞬时错误或模型输出损坏失败时，
// 回退到文本路径再试一次；文档本身损坏或为空则直接失败，不做回退。
type Orchestrator struct {
	components Components
	settings   Settings
}

// NewOrchestrator 创建编排器
func NewOrchestrator(components Components, settings Settings) *Orchestrator {
	if settings.MinTextLength <= 0 {
		settings.MinTextLength = constants.MinExtractableTextLen
	}
	return &Orchestrator{
		components: components,
		settings:   settings,
	}
}

// ProcessDocument 处理一份文档：提取、归一化并持久化。
// 返回最终落盘的记录以及是否合并了已有记录。
func (o *Orchestrator) ProcessDocument(ctx context.Context, fileName string, data []byte) (*types.CandidateRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "processor.ProcessDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.file_name", fileName),
		attribute.Int("document.size_bytes", len(data)),
	)

	kind := constants.KindFromFilename(fileName)
	if !constants.IsSupportedKind(kind) {
		err := NewUnsupportedKindError(fileName, "仅支持 .pdf 和 .docx")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, false, err
	}
	if len(data) == 0 {
		err := NewEmptyDocumentError(fileName)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, false, err
	}

	raw, strategy, err := o.extractFields(ctx, fileName, kind, data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeModel)
		return nil, false, err
	}
	span.SetAttributes(attribute.String("extraction.strategy", strategy))

	record := o.components.Normalizer.Normalize(raw, fileName, strategy)
	record.ConfidenceNotes = ConfidenceNote(record.UnresolvedFields)

	stored, merged, err := o.components.Store.Append(ctx, record)
	if err != nil {
		storeErr := NewStoreError(fileName, err.Error())
		tracing.RecordError(span, storeErr, tracing.ErrorTypeStore)
		return nil, false, storeErr
	}
	span.SetAttributes(attribute.Bool("store.merged", merged))

	logger.Ctx(ctx).Info().
		Str("file_name", fileName).
		Str("resume_id", stored.ResumeID).
		Str("strategy", strategy).
		Str("email", tracing.MaskPII(stored.Email)).
		Bool("merged", merged).
		Msg("文档处理完成")

	return stored, merged, nil
}

// extractFields 按文档类型选择提取路径，返回原始字段和实际使用的策略
func (o *Orchestrator) extractFields(ctx context.Context, fileName string, kind constants.DocumentKind, data []byte) (types.RawFields, string, error) {
	ctx, span := tracer.Start(ctx, "processor.extractFields")
	defer span.End()
	span.SetAttributes(attribute.String("document.kind", string(kind)))

	switch kind {
	case constants.KindDOCX:
		return o.extractViaText(ctx, fileName, o.components.DOCXText, data)
	case constants.KindPDF:
		return o.extractPDF(ctx, fileName, data)
	}
	return nil, "", NewUnsupportedKindError(fileName, string(kind))
}

// extractPDF 视觉优先，可回退的PDF提取
func (o *Orchestrator) extractPDF(ctx context.Context, fileName string, data []byte) (types.RawFields, string, error) {
	ctx, span := tracer.Start(ctx, "processor.extractPDF")
	defer span.End()

	pages, err := o.components.Rasterizer.RasterizePDF(ctx, data, fileName)
	if err != nil {
		// 渲染都打不开的文档视为损坏，直接失败
		corruptErr := NewCorruptDocumentError(fileName, err.Error())
		tracing.RecordError(span, corruptErr, tracing.ErrorTypeParse)
		return nil, "", corruptErr
	}
	span.SetAttributes(attribute.Int("document.pages", len(pages)))

	raw, visionErr := o.components.VisionLLM.Extract(ctx, pages)
	if visionErr == nil {
		return raw, constants.StrategyVision, nil
	}

	var httpErr *agent.HTTPError
	if errors.As(visionErr, &httpErr) {
		tracing.RecordHTTPError(span, visionErr, httpErr.StatusCode)
	} else {
		tracing.RecordError(span, visionErr, tracing.ErrorTypeModel)
	}

	if !isFallbackWorthy(visionErr) {
		logger.Ctx(ctx).Warn().
			Str("file_name", fileName).
			Err(visionErr).
			Msg("视觉提取失败且不可回退")
		return nil, "", &ExtractionFailure{FileName: fileName, PrimaryErr: visionErr}
	}

	logger.Ctx(ctx).Warn().
		Str("file_name", fileName).
		Err(visionErr).
		Msg("视觉提取失败，回退到文本路径")

	raw, strategy, textErr := o.extractViaText(ctx, fileName, o.components.PDFText, data)
	if textErr != nil {
		return nil, "", &ExtractionFailure{
			FileName:    fileName,
			PrimaryErr:  visionErr,
			FallbackErr: textErr,
		}
	}
	return raw, strategy, nil
}

// extractViaText 文本路径：提取文本层后送LLM做结构化提取
func (o *Orchestrator) extractViaText(ctx context.Context, fileName string, extractor TextExtractor, data []byte) (types.RawFields, string, error) {
	ctx, span := tracer.Start(ctx, "processor.extractViaText")
	defer span.End()

	text, err := extractor.ExtractText(ctx, data, fileName)
	if err != nil {
		corruptErr := NewCorruptDocumentError(fileName, err.Error())
		tracing.RecordError(span, corruptErr, tracing.ErrorTypeParse)
		return nil, "", corruptErr
	}

	// span里只放截断后的预览，完整简历文本不进遥测
	span.SetAttributes(
		attribute.Int("text.length", len(text)),
		attribute.String("text.preview", tracing.SafeResumeContent(text)),
	)

	if len(strings.TrimSpace(text)) < o.settings.MinTextLength {
		noTextErr := &ProcessError{
			FileName: fileName,
			Op:       "parse",
			BaseErr:  ErrNoExtractableText,
		}
		tracing.RecordError(span, noTextErr, tracing.ErrorTypeParse)
		return nil, "", noTextErr
	}

	raw, err := o.components.TextLLM.Extract(ctx, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeModel)
		return nil, "", err
	}
	return raw, constants.StrategyTextStructured, nil
}

// isFallbackWorthy 判断视觉路径的失败是否值得用文本路径再试一次。
// 瞬时错误（限流、服务端故障、网络）和模型输出损坏都值得回退，
// 文档本身的问题换一条路径也救不回来。
func isFallbackWorthy(err error) bool {
	return parser.IsRetryableModelError(err) || errors.Is(err, parser.ErrMalformedModelOutput)
}

package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/Rahul9182/Resume-screener/internal/config"
	"github.com/Rahul9182/Resume-screener/internal/logger"
	"github.com/Rahul9182/Resume-screener/internal/processor"
	"github.com/Rahul9182/Resume-screener/internal/storage"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// ResumeHandler 简历接口的业务入口，组合编排器和记录存储
type ResumeHandler struct {
	cfg          *config.Config
	store        *storage.ExcelStore
	orchestrator *processor.Orchestrator
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(cfg *config.Config, store *storage.ExcelStore, orchestrator *processor.Orchestrator) *ResumeHandler {
	return &ResumeHandler{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
	}
}

// UploadFileResult 单个上传文件的处理结果
type UploadFileResult struct {
	FileName string `json:"file_name"`
	Status   string `json:"status"` // "ok" 或 "failed"
	ResumeID string `json:"resume_id,omitempty"`
	Merged   bool   `json:"merged,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchUploadResponse 批量上传响应
type BatchUploadResponse struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []UploadFileResult `json:"results"`
}

// HandleBatchUpload 处理一批上传的简历文档
func (h *ResumeHandler) HandleBatchUpload(ctx context.Context, items []processor.BatchItem) (*BatchUploadResponse, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("未收到任何文件")
	}

	start := time.Now()
	results := h.orchestrator.ProcessBatch(ctx, items, h.cfg.Extractor.Workers)

	resp := &BatchUploadResponse{
		Total:   len(results),
		Results: make([]UploadFileResult, 0, len(results)),
	}
	for _, r := range results {
		fileResult := UploadFileResult{FileName: r.FileName}
		if r.Err != nil {
			fileResult.Status = "failed"
			fileResult.Error = r.Err.Error()
			resp.Failed++
		} else {
			fileResult.Status = "ok"
			fileResult.ResumeID = r.Record.ResumeID
			fileResult.Merged = r.Merged
			fileResult.Strategy = r.Record.ExtractionStrategy
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, fileResult)
	}

	logger.Ctx(ctx).Info().
		Int("total", resp.Total).
		Int("succeeded", resp.Succeeded).
		Int("failed", resp.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("批量上传处理完成")

	return resp, nil
}

// HandleList 按条件查询候选人记录
func (h *ResumeHandler) HandleList(ctx context.Context, filter storage.Filter) ([]*types.CandidateRecord, error) {
	return h.store.List(ctx, filter)
}

// HandleGet 按resume_id查询单条记录，不存在时返回nil
func (h *ResumeHandler) HandleGet(ctx context.Context, resumeID string) (*types.CandidateRecord, error) {
	return h.store.FindByID(ctx, resumeID)
}

// HandleDelete 按resume_id批量删除记录
func (h *ResumeHandler) HandleDelete(ctx context.Context, resumeIDs []string) (int, error) {
	if len(resumeIDs) == 0 {
		return 0, fmt.Errorf("未指定要删除的记录")
	}
	return h.store.Delete(ctx, resumeIDs)
}

// HandleExport 按条件导出记录为xlsx
func (h *ResumeHandler) HandleExport(ctx context.Context, filter storage.Filter, columns []string) ([]byte, error) {
	return h.store.Export(ctx, filter, columns)
}

// HandleStats 返回存储的汇总统计
func (h *ResumeHandler) HandleStats(ctx context.Context) (*storage.Stats, error) {
	return h.store.GetStats(ctx)
}

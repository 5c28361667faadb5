package router

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/Rahul9182/Resume-screener/internal/api/handler"
	"github.com/Rahul9182/Resume-screener/internal/processor"
	"github.com/Rahul9182/Resume-screener/internal/storage"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	// 批量上传简历，multipart字段名为 files
	api.POST("/resumes/upload", func(c context.Context, ctx *app.RequestContext) {
		form, err := ctx.MultipartForm()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "无效的multipart请求"})
			return
		}

		fileHeaders := form.File["files"]
		if len(fileHeaders) == 0 {
			// 兼容单文件字段名 file
			fileHeaders = form.File["file"]
		}
		if len(fileHeaders) == 0 {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		items := make([]processor.BatchItem, 0, len(fileHeaders))
		for _, fh := range fileHeaders {
			file, err := fh.Open()
			if err != nil {
				ctx.JSON(consts.StatusInternalServerError, utils.H{"error": fmt.Sprintf("打开文件 %s 失败", fh.Filename)})
				return
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				ctx.JSON(consts.StatusInternalServerError, utils.H{"error": fmt.Sprintf("读取文件 %s 失败", fh.Filename)})
				return
			}
			items = append(items, processor.BatchItem{FileName: fh.Filename, Data: data})
		}

		resp, err := resumeHandler.HandleBatchUpload(c, items)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusOK, resp)
	})

	// 按条件查询记录
	api.GET("/resumes", func(c context.Context, ctx *app.RequestContext) {
		filter, err := filterFromQuery(ctx)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}

		records, err := resumeHandler.HandleList(c, filter)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusOK, utils.H{"total": len(records), "records": records})
	})

	// 查询单条记录
	api.GET("/resumes/:id", func(c context.Context, ctx *app.RequestContext) {
		record, err := resumeHandler.HandleGet(c, ctx.Param("id"))
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		if record == nil {
			ctx.JSON(consts.StatusNotFound, utils.H{"error": "记录不存在"})
			return
		}
		ctx.JSON(consts.StatusOK, record)
	})

	// 导出过滤后的记录
	api.GET("/resumes/export", func(c context.Context, ctx *app.RequestContext) {
		filter, err := filterFromQuery(ctx)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}

		var columns []string
		if cols := ctx.Query("columns"); cols != "" {
			for _, col := range strings.Split(cols, ",") {
				if trimmed := strings.TrimSpace(col); trimmed != "" {
					columns = append(columns, trimmed)
				}
			}
		}

		data, err := resumeHandler.HandleExport(c, filter, columns)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}

		fileName := fmt.Sprintf("resumes_export_%s.xlsx", time.Now().Format("20060102_150405"))
		ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		ctx.Data(consts.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	})

	// 按resume_id批量删除
	api.DELETE("/resumes", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			ResumeIDs []string `json:"resume_ids"`
		}
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "无效的请求体"})
			return
		}

		deleted, err := resumeHandler.HandleDelete(c, req.ResumeIDs)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusOK, utils.H{"deleted": deleted})
	})

	// 汇总统计
	api.GET("/resumes/stats", func(c context.Context, ctx *app.RequestContext) {
		stats, err := resumeHandler.HandleStats(c)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, stats)
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// filterFromQuery 从查询参数解析过滤条件
func filterFromQuery(ctx *app.RequestContext) (storage.Filter, error) {
	filter := storage.Filter{
		Query: ctx.Query("q"),
	}

	if v := ctx.Query("min_experience"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("无效的 min_experience: %s", v)
		}
		filter.MinExperience = &f
	}
	if v := ctx.Query("max_experience"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("无效的 max_experience: %s", v)
		}
		filter.MaxExperience = &f
	}
	if v := ctx.Query("degrees"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(d); trimmed != "" {
				filter.Degrees = append(filter.Degrees, trimmed)
			}
		}
	}

	return filter, nil
}

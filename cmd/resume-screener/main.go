package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Rahul9182/Resume-screener/internal/agent"
	"github.com/Rahul9182/Resume-screener/internal/api/handler"
	"github.com/Rahul9182/Resume-screener/internal/api/router"
	"github.com/Rahul9182/Resume-screener/internal/config"
	applogger "github.com/Rahul9182/Resume-screener/internal/logger"
	"github.com/Rahul9182/Resume-screener/internal/parser"
	"github.com/Rahul9182/Resume-screener/internal/processor"
	"github.com/Rahul9182/Resume-screener/internal/storage"
	"github.com/Rahul9182/Resume-screener/pkg/ratelimit"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "resume-screener" //nolint:gochecknoglobals
)

func main() {
	// .env中的密钥在加载配置前生效
	_ = godotenv.Load()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg)
	glog.Infof("配置加载成功，服务 %s 版本 %s", serviceName, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 记录存储
	store, err := storage.NewExcelStore(cfg.Store, applogger.Logger)
	if err != nil {
		glog.Fatalf("初始化记录存储失败: %v", err)
	}
	glog.Infof("记录存储初始化成功，路径: %s，现有记录 %d 条", cfg.Store.Path, store.Count())

	// 模型客户端，文本和视觉各一个，共享同一个限流器
	var limiter *ratelimit.TokenBucket
	if cfg.OpenAI.QPM > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.OpenAI.QPM, 0)
		glog.Infof("模型调用限流: %d QPM", cfg.OpenAI.QPM)
	}

	modelLogger := newComponentLogger(cfg, "[模型客户端] ")
	textModel, err := agent.NewOpenAICompatChatModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.APIURL,
		agent.WithRateLimiter(limiter),
		agent.WithModelLogger(modelLogger),
	)
	if err != nil {
		glog.Fatalf("初始化文本模型客户端失败: %v", err)
	}
	visionModel, err := agent.NewOpenAICompatChatModel(cfg.OpenAI.APIKey, cfg.OpenAI.VisionModel, cfg.OpenAI.APIURL,
		agent.WithRateLimiter(limiter),
		agent.WithModelLogger(modelLogger),
	)
	if err != nil {
		glog.Fatalf("初始化视觉模型客户端失败: %v", err)
	}
	glog.Infof("模型客户端初始化成功: 文本=%s 视觉=%s", textModel.ModelName(), visionModel.ModelName())

	// 文档解析组件
	requestTimeout := config.GetDuration(cfg.Extractor.RequestTimeout, 90*time.Second)
	retryWait := time.Duration(cfg.OpenAI.RetryWaitSeconds) * time.Second

	pdfText, err := parser.NewPDFTextExtractor(ctx,
		parser.WithPDFLogger(newComponentLogger(cfg, "[PDF解析器] ")),
	)
	if err != nil {
		glog.Fatalf("初始化PDF文本提取器失败: %v", err)
	}
	docxText := parser.NewDOCXTextExtractor(newComponentLogger(cfg, "[DOCX解析器] "))
	rasterizer := parser.NewPageRasterizer(
		parser.WithRenderDPI(cfg.Extractor.RenderDPI),
		parser.WithJPEGQuality(cfg.Extractor.JPEGQuality),
		parser.WithMaxPages(cfg.Extractor.MaxPages),
		parser.WithRasterizerLogger(newComponentLogger(cfg, "[页面渲染器] ")),
	)

	textExtractor := parser.NewTextStructuredExtractor(textModel, newComponentLogger(cfg, "[文本提取器] "),
		parser.WithTextExtractorRetries(cfg.OpenAI.MaxRetries, retryWait),
		parser.WithTextExtractorTimeout(requestTimeout),
	)
	visionExtractor := parser.NewVisionExtractor(visionModel, newComponentLogger(cfg, "[视觉提取器] "),
		parser.WithVisionExtractorRetries(cfg.OpenAI.MaxRetries, retryWait),
		parser.WithVisionExtractorTimeout(requestTimeout),
	)
	glog.Info("提取组件初始化成功")

	// 编排器
	orchestrator := processor.NewOrchestrator(
		processor.Components{
			PDFText:    pdfText,
			DOCXText:   docxText,
			Rasterizer: rasterizer,
			TextLLM:    textExtractor,
			VisionLLM:  visionExtractor,
			Normalizer: processor.NewNormalizer(processor.WithGPAScale(cfg.Schema.GPAScale)),
			Store:      store,
		},
		processor.Settings{
			MinTextLength: cfg.Extractor.MinTextLength,
		},
	)
	glog.Info("提取编排器初始化成功")

	resumeHandler := handler.NewResumeHandler(cfg, store, orchestrator)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxUploadMB*1024*1024),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, resumeHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化应用日志并接管Hertz的日志输出
func initLogger(cfg *config.Config) {
	applogger.Init(applogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	applogger.Logger = applogger.Logger.With().Str("app", serviceName).Logger()

	hertzCompatibleLogger := hertzadapter.From(applogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
}

// newComponentLogger 为解析组件创建stdlib风格的日志器，debug级别以下丢弃
func newComponentLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.Logger.Level == "debug" {
		return log.New(applogger.Logger, prefix, log.LstdFlags|log.Lshortfile)
	}
	return log.New(io.Discard, "", 0)
}

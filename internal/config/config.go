package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig 模型服务配置，兼容OpenAI Chat Completions协议
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	APIURL      string `yaml:"api_url"`
	Model       string `yaml:"model"`        // 文本结构化提取使用的模型
	VisionModel string `yaml:"vision_model"` // 视觉提取使用的多模态模型
	// 限流与重试
	QPM              int `yaml:"qpm"`                // 每分钟请求数限制，0表示不限流
	MaxRetries       int `yaml:"max_retries"`        // 最大重试次数
	RetryWaitSeconds int `yaml:"retry_wait_seconds"` // 重试等待时间(秒)
}

// ExtractorConfig 提取流水线配置
type ExtractorConfig struct {
	RequestTimeout string `yaml:"request_timeout"` // 单次模型调用超时，例如 "90s"
	MinTextLength  int    `yaml:"min_text_length"` // 低于该字符数视为无有效文本层
	MaxPages       int    `yaml:"max_pages"`       // 单份文档最多渲染的页数
	RenderDPI      int    `yaml:"render_dpi"`      // 页面渲染分辨率
	JPEGQuality    int    `yaml:"jpeg_quality"`    // 页面图像JPEG压缩质量(1-100)
	Workers        int    `yaml:"workers"`         // 批量处理的并发工作协程数
}

// SchemaConfig 字段归一化配置
type SchemaConfig struct {
	GPAScale float64 `yaml:"gpa_scale"` // 目标GPA量纲，默认4.0
}

// StoreConfig 记录存储配置
type StoreConfig struct {
	Path        string `yaml:"path"`         // xlsx文件路径
	SheetName   string `yaml:"sheet_name"`   // 工作表名
	IdentityKey string `yaml:"identity_key"` // 身份合并键："email" 或 "resume_id"
}

// ServerConfig 定义服务器配置
type ServerConfig struct {
	Address     string `yaml:"address"`       // 例如 ":8080"
	MaxUploadMB int    `yaml:"max_upload_mb"` // 单次上传大小上限(MB)
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// Config 应用程序配置
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Schema    SchemaConfig    `yaml:"schema"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果未指定配置文件路径，则尝试在默认位置查找
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			"../../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".resume-screener", "config.yaml"),
		}

		// 可执行文件所在目录及其上级目录
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths, filepath.Join(execDir, "config.yaml"))
			searchPaths = append(searchPaths, filepath.Join(execDir, "..", "config.yaml"))
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		// 如果仍找不到配置文件且在测试环境中，使用默认配置
		if configPath == "" {
			if inTestEnv() {
				return createDefaultConfig(), nil
			}
			configPath = "config.yaml"
		}
	}

	// 检查文件是否存在
	if _, err := os.Stat(configPath); err != nil {
		if inTestEnv() {
			return createDefaultConfig(), nil
		}
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 从环境变量覆盖配置（如果存在）
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		config.OpenAI.APIKey = envKey
	}
	if envURL := os.Getenv("OPENAI_API_URL"); envURL != "" {
		config.OpenAI.APIURL = envURL
	}
	if envModel := os.Getenv("OPENAI_MODEL"); envModel != "" {
		config.OpenAI.Model = envModel
	}
	if envModel := os.Getenv("OPENAI_VISION_MODEL"); envModel != "" {
		config.OpenAI.VisionModel = envModel
	}

	config.applyDefaults()
	return &config, nil
}

// inTestEnv 通过命令行参数检测是否在go test环境中运行
func inTestEnv() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") {
			return true
		}
	}
	return false
}

// applyDefaults 填充未设置的配置项
func (c *Config) applyDefaults() {
	if c.OpenAI.APIURL == "" {
		c.OpenAI.APIURL = "https://api.openai.com/v1/chat/completions"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.VisionModel == "" {
		c.OpenAI.VisionModel = "gpt-4o"
	}
	if c.OpenAI.MaxRetries == 0 {
		c.OpenAI.MaxRetries = 1
	}
	if c.OpenAI.RetryWaitSeconds == 0 {
		c.OpenAI.RetryWaitSeconds = 2
	}

	if c.Extractor.RequestTimeout == "" {
		c.Extractor.RequestTimeout = "90s"
	}
	if c.Extractor.MinTextLength == 0 {
		c.Extractor.MinTextLength = 50
	}
	if c.Extractor.MaxPages == 0 {
		c.Extractor.MaxPages = 10
	}
	if c.Extractor.RenderDPI == 0 {
		c.Extractor.RenderDPI = 150
	}
	if c.Extractor.JPEGQuality == 0 {
		c.Extractor.JPEGQuality = 85
	}
	if c.Extractor.Workers == 0 {
		c.Extractor.Workers = 3
	}

	if c.Schema.GPAScale == 0 {
		c.Schema.GPAScale = 4.0
	}

	if c.Store.Path == "" {
		c.Store.Path = "data/resumes.xlsx"
	}
	if c.Store.SheetName == "" {
		c.Store.SheetName = "Resumes"
	}
	if c.Store.IdentityKey == "" {
		c.Store.IdentityKey = "email"
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 32
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
}

// 创建一个默认配置，用于测试环境
func createDefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()

	config.Logger.Format = "pretty"
	config.Logger.TimeFormat = "2006-01-02 15:04:05"
	config.Logger.ReportCaller = true

	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		config.OpenAI.APIKey = envKey
	} else {
		config.OpenAI.APIKey = "test_api_key"
	}

	return config
}

// CreateSampleConfig 创建一个示例配置文件
func CreateSampleConfig(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}

	config := createDefaultConfig()

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	err = os.WriteFile(filePath, data, 0644)
	if err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}

	fmt.Printf("示例配置文件已创建: %s\n", filePath)
	return nil
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Rahul9182/Resume-screener/pkg/ratelimit"
)

const (
	defaultOpenAIAPIURL = "https://api.openai.com/v1/chat/completions"
	defaultModelName    = "gpt-4o-mini"
)

// HTTPError 模型服务返回的非2xx响应
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("模型API请求失败，状态码 %d: %s", e.StatusCode, e.Body)
}

// IsRateLimitOrServerError 判断是否为限流或服务端错误，这类错误值得重试
func (e *HTTPError) IsRateLimitOrServerError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// --- OpenAI兼容的请求/响应结构 ---

// openAIContentPart 多模态消息的内容分片
type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// openAIMessage Content为string或[]openAIContentPart，取决于是否多模态
type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int                   `json:"index"`
	Message      openAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// OpenAICompatChatModel 实现 model.ToolCallingChatModel 接口，
// 对接任何兼容OpenAI Chat Completions协议的模型服务。
// 同一实例可承载纯文本消息和携带图像分片的多模态消息。
type OpenAICompatChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	httpClient  *http.Client
	limiter     *ratelimit.TokenBucket
	temperature *float64
	logger      *log.Logger
}

// OpenAICompatOption 配置选项
type OpenAICompatOption func(*OpenAICompatChatModel)

// WithHTTPClient 自定义HTTP客户端
func WithHTTPClient(client *http.Client) OpenAICompatOption {
	return func(m *OpenAICompatChatModel) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithRateLimiter 按QPM限流模型调用
func WithRateLimiter(limiter *ratelimit.TokenBucket) OpenAICompatOption {
	return func(m *OpenAICompatChatModel) {
		m.limiter = limiter
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float64) OpenAICompatOption {
	return func(m *OpenAICompatChatModel) {
		m.temperature = &t
	}
}

// WithModelLogger 自定义日志记录器
func WithModelLogger(logger *log.Logger) OpenAICompatOption {
	return func(m *OpenAICompatChatModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewOpenAICompatChatModel 创建一个新的OpenAI兼容模型客户端
func NewOpenAICompatChatModel(apiKey string, modelName string, apiURL string, options ...OpenAICompatOption) (*OpenAICompatChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = defaultOpenAIAPIURL
	}

	m := &OpenAICompatChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{},
		logger:     log.New(io.Discard, "", 0),
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// ModelName 返回该客户端绑定的模型名
func (m *OpenAICompatChatModel) ModelName() string {
	return m.modelName
}

// toWireMessage 将eino消息转换为OpenAI线上格式。
// 带MultiContent的消息编码为内容分片数组，否则编码为普通字符串。
func toWireMessage(msg *schema.Message) openAIMessage {
	if len(msg.MultiContent) == 0 {
		return openAIMessage{Role: string(msg.Role), Content: msg.Content}
	}

	parts := make([]openAIContentPart, 0, len(msg.MultiContent))
	for _, p := range msg.MultiContent {
		switch p.Type {
		case schema.ChatMessagePartTypeText:
			parts = append(parts, openAIContentPart{Type: "text", Text: p.Text})
		case schema.ChatMessagePartTypeImageURL:
			if p.ImageURL == nil {
				continue
			}
			parts = append(parts, openAIContentPart{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL:    p.ImageURL.URL,
					Detail: string(p.ImageURL.Detail),
				},
			})
		}
	}
	return openAIMessage{Role: string(msg.Role), Content: parts}
}

// Generate 实现 model.ChatModel 接口
func (m *OpenAICompatChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 本实现不支持按调用覆盖选项
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待限流令牌失败: %w", err)
		}
	}

	wireMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		wireMessages = append(wireMessages, toWireMessage(msg))
	}

	reqPayload := openAIChatCompletionRequest{
		Model:       m.modelName,
		Messages:    wireMessages,
		Temperature: m.temperature,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	m.logger.Printf("[模型客户端] 发送请求到 %s，模型 %s，消息数 %d", m.apiURL, m.modelName, len(wireMessages))

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Body: string(bodyBytes)}
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口 (未实现流式输出)
func (m *OpenAICompatChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatChatModel 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口。
// 结构化提取只依赖提示词约束的JSON输出，不使用工具调用。
func (m *OpenAICompatChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		m.logger.Printf("[模型客户端] 忽略了 %d 个工具绑定请求", len(tools))
	}
	return nil
}

// WithTools 满足 model.ToolCallingChatModel 接口
func (m *OpenAICompatChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

var _ model.ChatModel = (*OpenAICompatChatModel)(nil)
var _ model.ToolCallingChatModel = (*OpenAICompatChatModel)(nil)

package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/Rahul9182/Resume-screener/internal/agent"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// ErrMalformedModelOutput 模型返回的内容无法解析为字段对象
var ErrMalformedModelOutput = errors.New("模型输出不是有效的JSON对象")

// generateExtractionPrompt 根据字段全集生成提取提示词。
// 提示词使用英文，目标简历以英文为主。
func generateExtractionPrompt() string {
	var fields strings.Builder
	for _, f := range types.SchemaFields {
		typeHint := "string"
		switch f.Kind {
		case types.FieldYear:
			typeHint = "number, 4-digit year"
		case types.FieldFloat, types.FieldGPA:
			typeHint = "number or string"
		case types.FieldList:
			typeHint = "array of strings"
		}
		fields.WriteString(fmt.Sprintf("  - %q (%s): %s\n", f.Key, typeHint, f.Description))
	}

	return fmt.Sprintf(`You are an expert resume parser. Extract the following fields from the resume and return them as a single JSON object.

Fields to extract:
%s
Rules:
- Return ONLY a JSON object, no explanation, no markdown fences.
- Use exactly the field keys listed above.
- If a field is not present in the resume, set it to null. Never invent values.
- Keep numeric values as numbers where possible. For GPA keep the original scale (e.g. "9.2/10" or 3.7).
- For list fields return an array of short strings, one item per entry.`, fields.String())
}

// callModel 调用模型并在可重试错误时退避重试，每次调用带独立超时
func callModel(ctx context.Context, llm model.ToolCallingChatModel, messages []*einoschema.Message,
	logger *log.Logger, maxRetries int, retryWait time.Duration, timeout time.Duration) (string, error) {

	var response *einoschema.Message
	var err error

	retryDelay := retryWait
	for retry := 0; retry <= maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				logger.Printf("重试模型调用 (第%d次)", retry)
			}
		}

		// 带超时的子上下文，继承上游的取消信号
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		response, err = llm.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}

		if !IsRetryableModelError(err) || retry >= maxRetries {
			return "", fmt.Errorf("模型调用失败: %w", err)
		}
	}

	return response.Content, nil
}

// IsRetryableModelError 判断模型调用错误是否为瞬时错误（限流、服务端故障、网络抖动）
func IsRetryableModelError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *agent.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRateLimitOrServerError()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// parseRawFields 从模型响应中提取并解析字段对象
func parseRawFields(response string) (types.RawFields, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: 响应中未找到JSON", ErrMalformedModelOutput)
	}

	var fields types.RawFields
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	return fields, nil
}

// extractJSON 从文本中提取JSON对象
func extractJSON(text string) string {
	// 尝试使用正则表达式提取 ```json ... ``` 代码块中的内容
	re := regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// 如果正则没有匹配到，尝试寻找 JSON 的开始和结束位置作为回退
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	// 查找匹配的}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}

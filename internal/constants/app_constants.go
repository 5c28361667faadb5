package constants

import (
	"path/filepath"
	"strings"
)

// DocumentKind 输入文档的类型
type DocumentKind string

const (
	KindPDF  DocumentKind = "pdf"
	KindDOCX DocumentKind = "docx"
)

// 提取策略标识，随记录一起持久化，便于追溯每条记录的来源路径
const (
	StrategyVision         = "vision"
	StrategyTextStructured = "text-structured"
)

const (
	// DefaultSheetName 持久化表格的工作表名
	DefaultSheetName = "Resumes"

	// MinExtractableTextLen 低于该字符数的提取文本视为无有效文本层
	MinExtractableTextLen = 50
)

// KindFromFilename 根据文件扩展名判断文档类型，无法识别时返回空串
func KindFromFilename(name string) DocumentKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	}
	return ""
}

// IsSupportedKind 判断是否为支持的文档类型
func IsSupportedKind(kind DocumentKind) bool {
	return kind == KindPDF || kind == KindDOCX
}

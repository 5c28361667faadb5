package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"strings"
)

// DOCXTextExtractor 提取DOCX文档的文本内容。
// DOCX是包含WordprocessingML的zip包，直接解压并遍历word/document.xml，
// 段落之间以换行分隔，表格单元格之间以制表符分隔。
type DOCXTextExtractor struct {
	logger *log.Logger
}

// NewDOCXTextExtractor 创建DOCX文本提取器
func NewDOCXTextExtractor(logger *log.Logger) *DOCXTextExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &DOCXTextExtractor{logger: logger}
}

// ExtractText 从DOCX字节流中提取纯文本，uri仅用于日志
func (e *DOCXTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开DOCX包失败 (URI %s): %w", uri, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("DOCX包中缺少 word/document.xml (URI %s)", uri)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("读取 word/document.xml 失败: %w", err)
	}
	defer rc.Close()

	text, err := walkDocumentXML(rc)
	if err != nil {
		return "", fmt.Errorf("解析 word/document.xml 失败: %w", err)
	}

	e.logger.Printf("DOCX文本提取完成: 提取了 %d 个字符 (URI: %s)", len(text), uri)
	return text, nil
}

// walkDocumentXML 流式遍历WordprocessingML，按文档顺序收集文本。
// w:t为文本run，w:p结束时换行，w:tc结束时用制表符分隔相邻单元格，
// w:br和w:tab分别映射为换行和制表符。
func walkDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	var inText bool
	var cellDepth int

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tc":
				cellDepth++
			case "br":
				sb.WriteByte('\n')
			case "tab":
				sb.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				// 单元格内的段落不换行，整个单元格保持在同一行
				if cellDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tc":
				if cellDepth > 0 {
					cellDepth--
				}
				sb.WriteByte('\t')
			case "tr":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return normalizeExtractedText(sb.String()), nil
}

// normalizeExtractedText 压缩多余空白：行内去首尾空白，连续空行折叠为一个
func normalizeExtractedText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

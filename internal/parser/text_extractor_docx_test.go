package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDOCX 在内存中构造一个最小的DOCX包
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err, "无法创建zip条目")
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>
    <w:p><w:r><w:t>Senior </w:t></w:r><w:r><w:t>Engineer</w:t></w:r></w:p>
    <w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Skill</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Go</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

func TestDOCXExtractText(t *testing.T) {
	extractor := NewDOCXTextExtractor(nil)

	data := buildDOCX(t, sampleDocumentXML)
	text, err := extractor.ExtractText(context.Background(), data, "sample.docx")
	require.NoError(t, err)

	assert.Contains(t, text, "Jane Doe")
	// 同一段落内的多个run应拼接在一起
	assert.Contains(t, text, "Senior Engineer")
	// w:br映射为换行
	assert.Contains(t, text, "Line one\nLine two")
	// 表格单元格之间以制表符分隔
	assert.Contains(t, text, "Skill\tGo")
}

func TestDOCXExtractText_NotAZip(t *testing.T) {
	extractor := NewDOCXTextExtractor(nil)

	_, err := extractor.ExtractText(context.Background(), []byte("这不是一个zip文件"), "bad.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "打开DOCX包失败")
}

func TestDOCXExtractText_MissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<w:styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	extractor := NewDOCXTextExtractor(nil)
	_, err = extractor.ExtractText(context.Background(), buf.Bytes(), "incomplete.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")
}

func TestDOCXExtractText_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := NewDOCXTextExtractor(nil)
	_, err := extractor.ExtractText(ctx, buildDOCX(t, sampleDocumentXML), "sample.docx")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeExtractedText(t *testing.T) {
	input := "Jane Doe   \n\n\n\nEngineer\t\n  \nGo"
	assert.Equal(t, "Jane Doe\n\nEngineer\n\nGo", normalizeExtractedText(input))
}

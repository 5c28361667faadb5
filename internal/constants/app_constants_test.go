package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		expected DocumentKind
	}{
		{"resume.pdf", KindPDF},
		{"Resume.PDF", KindPDF},
		{"resume.docx", KindDOCX},
		{"archive/path/resume.DOCX", KindDOCX},
		{"resume.doc", ""},
		{"resume.txt", ""},
		{"resume", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, KindFromFilename(tt.filename), "文件名: %s", tt.filename)
	}
}

func TestIsSupportedKind(t *testing.T) {
	assert.True(t, IsSupportedKind(KindPDF))
	assert.True(t, IsSupportedKind(KindDOCX))
	assert.False(t, IsSupportedKind(""))
	assert.False(t, IsSupportedKind(DocumentKind("doc")))
}

// Package pdftext 提供 PDF 文本抽取与引用识别
package pdftext

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	apperrors "needle-api/pkg/errors"
)

// Extract 从 PDF 原始字节抽取纯文本
func Extract(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.ErrPDFExtractFailed.WithDetail("empty pdf data")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodePDFExtractFailed, "failed to open pdf")
	}

	var buf bytes.Buffer
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodePDFExtractFailed, "failed to extract pdf text")
	}
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodePDFExtractFailed, "failed to read pdf text")
	}

	text := normalize(buf.String())
	if text == "" {
		return "", apperrors.ErrPDFExtractFailed.WithDetail("pdf contains no extractable text")
	}
	return text, nil
}

// HeadWords 截取文本前 n 个词
func HeadWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}

// normalize 压缩连续空白，剔除不可见控制字符
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\x00' || r == '\uFFFD' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

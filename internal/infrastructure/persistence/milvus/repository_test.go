package milvus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeleteChunksByDocRejectsUnsafeID(t *testing.T) {
	r := &Repository{}

	// 带引号的 ID 会改写删除表达式，必须在拼接前拒绝
	for _, docID := range []string{
		`x" || doc_id != "`,
		`a"b`,
		"a\\b",
		"doc id",
		"",
		"-leading-dash",
	} {
		err := r.DeleteChunksByDoc(context.Background(), docID)
		assert.ErrorContains(t, err, "invalid doc id", "docID=%q", docID)
	}
}

func TestDeleteChunksByDocAcceptsWellFormedIDs(t *testing.T) {
	r := &Repository{}

	// 合法 ID 通过校验，在无客户端时才报连接错误
	for _, docID := range []string{
		"2104.08653",
		"math/0211159",
		"upload-attention-is-all-you-need",
	} {
		err := r.DeleteChunksByDoc(context.Background(), docID)
		assert.ErrorContains(t, err, "not configured", "docID=%q", docID)
	}
}

package dto

import (
	"needle-api/internal/domain/entity"
)

// AddArxivPaperRequest 按 arXiv ID 入库请求
type AddArxivPaperRequest struct {
	ArxivID string `json:"arxiv_id" binding:"required"`
}

// KBDocumentResponse 知识库逻辑文档
type KBDocumentResponse struct {
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// KBDocumentListResponse 知识库文档列表
type KBDocumentListResponse struct {
	Documents []*KBDocumentResponse `json:"documents"`
}

// KBDescriptionRequest 更新知识库描述请求
type KBDescriptionRequest struct {
	Description string `json:"description"`
}

// KBDescriptionResponse 知识库描述
type KBDescriptionResponse struct {
	Description string `json:"description"`
}

func ToKBDocumentResponse(doc *entity.KBDocument) *KBDocumentResponse {
	if doc == nil {
		return nil
	}
	return &KBDocumentResponse{
		DocID:      doc.DocID,
		Title:      doc.Title,
		Source:     string(doc.Source),
		ChunkCount: doc.ChunkCount,
	}
}

func ToKBDocumentListResponse(docs []*entity.KBDocument) *KBDocumentListResponse {
	out := &KBDocumentListResponse{Documents: make([]*KBDocumentResponse, 0, len(docs))}
	for _, d := range docs {
		if r := ToKBDocumentResponse(d); r != nil {
			out.Documents = append(out.Documents, r)
		}
	}
	return out
}

package handler

import (
	"github.com/gin-gonic/gin"

	"needle-api/internal/application/kb"
	"needle-api/internal/interfaces/http/dto"
)

// KBHandler 知识库处理器
type KBHandler struct {
	svc            *kb.Service
	maxUploadBytes int64
}

func NewKBHandler(svc *kb.Service, maxUploadBytes int64) *KBHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &KBHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// AddArxivPaper 按 arXiv ID 将论文全文加入知识库
// @Summary 按 arXiv ID 入库
// @Tags KnowledgeBase
// @Accept json
// @Produce json
// @Param body body dto.AddArxivPaperRequest true "入库请求"
// @Success 201 {object} dto.Response[dto.KBDocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/kb/papers [post]
func (h *KBHandler) AddArxivPaper(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AddArxivPaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	doc, err := h.svc.AddArxivPaper(ctx, req.ArxivID)
	if err != nil {
		writeAppError(ctx, c, err, "failed to ingest arXiv paper")
		return
	}

	dto.Created(c, dto.ToKBDocumentResponse(doc))
}

// AddUpload 将上传的 PDF 加入知识库
// @Summary 上传 PDF 入库
// @Tags KnowledgeBase
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF 文件"
// @Param title formData string false "文档标题"
// @Success 201 {object} dto.Response[dto.KBDocumentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb/uploads [post]
func (h *KBHandler) AddUpload(c *gin.Context) {
	ctx := c.Request.Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "file field is required")
		return
	}
	data, err := readPDFUpload(fileHeader, h.maxUploadBytes)
	if err != nil {
		writeAppError(ctx, c, err, "failed to read uploaded file")
		return
	}

	doc, err := h.svc.AddUploadedPDF(ctx, fileHeader.Filename, c.PostForm("title"), data)
	if err != nil {
		writeAppError(ctx, c, err, "failed to ingest uploaded PDF")
		return
	}

	dto.Created(c, dto.ToKBDocumentResponse(doc))
}

// ListDocuments 列出知识库文档
// @Summary 列出知识库文档
// @Tags KnowledgeBase
// @Produce json
// @Success 200 {object} dto.Response[dto.KBDocumentListResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb/documents [get]
func (h *KBHandler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()

	docs, err := h.svc.ListDocuments(ctx)
	if err != nil {
		writeAppError(ctx, c, err, "failed to list knowledge base documents")
		return
	}

	dto.Success(c, dto.ToKBDocumentListResponse(docs))
}

// DeleteDocument 删除一个知识库文档
// @Summary 删除知识库文档
// @Tags KnowledgeBase
// @Produce json
// @Param did path string true "文档 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb/documents/{did} [delete]
func (h *KBHandler) DeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.svc.DeleteDocument(ctx, dto.BindDocID(c)); err != nil {
		writeAppError(ctx, c, err, "failed to delete knowledge base document")
		return
	}

	dto.NoContent(c)
}

// Clear 清空知识库
// @Summary 清空知识库
// @Tags KnowledgeBase
// @Produce json
// @Success 204
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb [delete]
func (h *KBHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.svc.Clear(ctx); err != nil {
		writeAppError(ctx, c, err, "failed to clear knowledge base")
		return
	}

	dto.NoContent(c)
}

// GetDescription 读取知识库描述
// @Summary 读取知识库描述
// @Tags KnowledgeBase
// @Produce json
// @Success 200 {object} dto.Response[dto.KBDescriptionResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb/description [get]
func (h *KBHandler) GetDescription(c *gin.Context) {
	ctx := c.Request.Context()

	desc, err := h.svc.Description(ctx)
	if err != nil {
		writeAppError(ctx, c, err, "failed to load knowledge base description")
		return
	}

	dto.Success(c, &dto.KBDescriptionResponse{Description: desc})
}

// PutDescription 更新知识库描述
// @Summary 更新知识库描述
// @Tags KnowledgeBase
// @Accept json
// @Produce json
// @Param body body dto.KBDescriptionRequest true "描述"
// @Success 200 {object} dto.Response[dto.KBDescriptionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/kb/description [put]
func (h *KBHandler) PutDescription(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.KBDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SetDescription(ctx, req.Description); err != nil {
		writeAppError(ctx, c, err, "failed to update knowledge base description")
		return
	}

	dto.Success(c, &dto.KBDescriptionResponse{Description: req.Description})
}

// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"needle-api/internal/application/search"
	"needle-api/internal/interfaces/http/dto"
	apperrors "needle-api/pkg/errors"
)

// SearchHandler 论文检索处理器
type SearchHandler struct {
	svc            *search.Service
	maxUploadBytes int64
}

func NewSearchHandler(svc *search.Service, maxUploadBytes int64) *SearchHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &SearchHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// SearchByPrompt 自然语言检索论文
// @Summary 自然语言检索论文
// @Description 将用户问题（可选经 LLM 改写为关键词）向量化后检索论文库
// @Tags Search
// @Accept json
// @Produce json
// @Param body body dto.PromptSearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/search/prompt [post]
func (h *SearchHandler) SearchByPrompt(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.PromptSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.svc.SearchByPrompt(ctx, &search.PromptSearchInput{
		Prompt:        req.Prompt,
		TopK:          req.TopK,
		RewriteQuery:  req.RewriteQuery,
		WithCitations: req.WithCitations,
		Filters:       req.Filters.ToFilters(),
	})
	if err != nil {
		writeAppError(ctx, c, err, "paper search failed")
		return
	}

	dto.Success(c, dto.ToSearchResponse(out))
}

// SearchByPDF 以上传 PDF 为查询检索相似论文
// @Summary 上传 PDF 检索相似论文
// @Description 抽取 PDF 正文并向量化检索论文库，可标注命中论文是否被该 PDF 引用
// @Tags Search
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF 文件"
// @Param top_k formData int false "返回条数"
// @Param with_citations formData bool false "是否补充引用数"
// @Param annotate_references formData bool false "是否标注 PDF 内引用"
// @Param filters formData string false "过滤条件 JSON"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/search/pdf [post]
func (h *SearchHandler) SearchByPDF(c *gin.Context) {
	ctx := c.Request.Context()

	data, err := h.readUpload(c)
	if err != nil {
		writeAppError(ctx, c, err, "failed to read uploaded file")
		return
	}

	filters, err := parseFiltersForm(c.PostForm("filters"))
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	out, err := h.svc.SearchByPDF(ctx, &search.PDFSearchInput{
		PDFData:            data,
		TopK:               parseIntForm(c.PostForm("top_k")),
		WithCitations:      parseBoolForm(c.PostForm("with_citations")),
		AnnotateReferences: parseBoolForm(c.PostForm("annotate_references")),
		Filters:            filters,
	})
	if err != nil {
		writeAppError(ctx, c, err, "paper search failed")
		return
	}

	dto.Success(c, dto.ToSearchResponse(out))
}

// readUpload 读取 multipart 上传的 PDF，限制大小
func (h *SearchHandler) readUpload(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("file field is required")
	}
	return readPDFUpload(fileHeader, h.maxUploadBytes)
}

func readPDFUpload(fileHeader *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if fileHeader.Size > maxBytes {
		return nil, apperrors.ErrInvalidParam.WithDetail("uploaded file exceeds size limit")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "failed to open uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "failed to read uploaded file")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperrors.ErrInvalidParam.WithDetail("uploaded file exceeds size limit")
	}
	return data, nil
}

func parseFiltersForm(raw string) (*search.Filters, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var req dto.SearchFiltersRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("invalid filters json: " + err.Error())
	}
	return req.ToFilters(), nil
}

func parseIntForm(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func parseBoolForm(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

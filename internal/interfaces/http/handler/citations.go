package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"needle-api/internal/infrastructure/citations"
	"needle-api/internal/interfaces/http/dto"
)

// CitationHandler 引用数查询处理器
type CitationHandler struct {
	svc *citations.Client
}

func NewCitationHandler(svc *citations.Client) *CitationHandler {
	return &CitationHandler{svc: svc}
}

// GetCitations 查询 DOI 的引用数
// 查询失败不视为错误，Known=false 表示数据源无结果
// @Summary 查询引用数
// @Tags Citations
// @Produce json
// @Param doi path string true "DOI，含斜杠"
// @Param year query int false "只统计该年份的引用"
// @Param use_crossref query bool false "按年统计时使用 Crossref 估算"
// @Success 200 {object} dto.Response[dto.CitationCountResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/citations/{doi} [get]
func (h *CitationHandler) GetCitations(c *gin.Context) {
	ctx := c.Request.Context()

	doi := dto.BindDOI(c)
	if doi == "" {
		dto.BadRequest(c, "doi is required")
		return
	}

	yearStr := strings.TrimSpace(c.Query("year"))
	if yearStr == "" {
		count := h.svc.AllTime(ctx, doi)
		dto.Success(c, dto.ToCitationCountResponse(doi, 0, count))
		return
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1000 || year > 9999 {
		dto.BadRequest(c, "year must be a four-digit number")
		return
	}

	useCrossref, _ := strconv.ParseBool(c.DefaultQuery("use_crossref", "false"))
	count := h.svc.Yearly(ctx, doi, year, useCrossref)
	dto.Success(c, dto.ToCitationCountResponse(doi, year, count))
}

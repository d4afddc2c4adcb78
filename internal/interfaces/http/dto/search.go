package dto

import (
	"needle-api/internal/application/search"
	"needle-api/internal/infrastructure/citations"
)

// SearchFiltersRequest 检索结果过滤条件
type SearchFiltersRequest struct {
	Categories       []string `json:"categories,omitempty"`
	YearMin          int      `json:"year_min,omitempty"`
	YearMax          int      `json:"year_max,omitempty"`
	TitleKeywords    []string `json:"title_keywords,omitempty"`
	AbstractKeywords []string `json:"abstract_keywords,omitempty"`
	AuthorName       string   `json:"author_name,omitempty"`
}

func (r *SearchFiltersRequest) ToFilters() *search.Filters {
	if r == nil {
		return nil
	}
	return &search.Filters{
		Categories:       r.Categories,
		YearMin:          r.YearMin,
		YearMax:          r.YearMax,
		TitleKeywords:    r.TitleKeywords,
		AbstractKeywords: r.AbstractKeywords,
		AuthorName:       r.AuthorName,
	}
}

// PromptSearchRequest 自然语言检索请求
type PromptSearchRequest struct {
	Prompt        string                `json:"prompt" binding:"required"`
	TopK          int                   `json:"top_k,omitempty"`
	RewriteQuery  bool                  `json:"rewrite_query,omitempty"`
	WithCitations bool                  `json:"with_citations,omitempty"`
	Filters       *SearchFiltersRequest `json:"filters,omitempty"`
}

// PaperResponse 检索命中的论文
type PaperResponse struct {
	ArxivID            string `json:"arxiv_id"`
	DOI                string `json:"doi,omitempty"`
	Title              string `json:"title"`
	Authors            string `json:"authors,omitempty"`
	Abstract           string `json:"abstract,omitempty"`
	Categories         string `json:"categories,omitempty"`
	LatestCreationDate string `json:"latest_creation_date,omitempty"`
	PDFURL             string `json:"pdf_url,omitempty"`
}

// SearchResultResponse 单条检索结果
type SearchResultResponse struct {
	Paper      *PaperResponse   `json:"paper"`
	Score      float32          `json:"score"`
	Citations  *citations.Count `json:"citations,omitempty"`
	CitedInPDF *bool            `json:"cited_in_pdf,omitempty"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Results        []*SearchResultResponse `json:"results"`
	RewrittenQuery string                  `json:"rewritten_query,omitempty"`
}

// ToSearchResponse 由应用层输出组装检索响应
func ToSearchResponse(out *search.Output) *SearchResponse {
	resp := &SearchResponse{
		Results:        make([]*SearchResultResponse, 0, len(out.Results)),
		RewrittenQuery: out.RewrittenQuery,
	}
	for _, r := range out.Results {
		if r == nil || r.Paper == nil {
			continue
		}
		resp.Results = append(resp.Results, &SearchResultResponse{
			Paper: &PaperResponse{
				ArxivID:            r.Paper.ArxivID,
				DOI:                r.Paper.DOI,
				Title:              r.Paper.Title,
				Authors:            r.Paper.Authors,
				Abstract:           r.Paper.Abstract,
				Categories:         r.Paper.Categories,
				LatestCreationDate: r.Paper.LatestCreationDate,
				PDFURL:             r.Paper.PDFURL,
			},
			Score:      r.Score,
			Citations:  r.Cites,
			CitedInPDF: r.CitedInPDF,
		})
	}
	return resp
}

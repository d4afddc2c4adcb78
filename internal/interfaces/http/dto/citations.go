package dto

import "needle-api/internal/infrastructure/citations"

// CitationCountResponse 引用数查询响应
// Known 为 false 表示两个数据源都未能给出结果
type CitationCountResponse struct {
	DOI      string `json:"doi"`
	Year     int    `json:"year,omitempty"`
	Count    int    `json:"count"`
	Known    bool   `json:"known"`
	Provider string `json:"provider,omitempty"`
}

func ToCitationCountResponse(doi string, year int, count citations.Count) *CitationCountResponse {
	return &CitationCountResponse{
		DOI:      doi,
		Year:     year,
		Count:    count.Count,
		Known:    count.Known,
		Provider: count.Provider,
	}
}

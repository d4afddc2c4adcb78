package pdftext

import (
	"regexp"
	"strings"
)

var (
	doiPattern = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)
	// 新式 arXiv 编号，如 2104.08653 或 2104.08653v2
	arxivPattern = regexp.MustCompile(`(?i)arxiv[:\s/]*(\d{4}\.\d{4,5})(?:v\d+)?`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// References 从 PDF 文本中识别出的外部引用标识
type References struct {
	DOIs     []string
	ArxivIDs []string
	URLs     []string
}

// ExtractReferences 扫描文本中的 DOI、arXiv 编号与 URL，按出现顺序去重
func ExtractReferences(text string) *References {
	refs := &References{}

	seen := make(map[string]struct{})
	for _, m := range doiPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;")
		key := "doi:" + strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs.DOIs = append(refs.DOIs, m)
	}

	for _, m := range arxivPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		key := "arxiv:" + id
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs.ArxivIDs = append(refs.ArxivIDs, id)
	}

	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;")
		key := "url:" + strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs.URLs = append(refs.URLs, m)
	}

	return refs
}

// Mentions 判断给定论文是否出现在引用标识中
func (r *References) Mentions(arxivID, doi string) bool {
	if r == nil {
		return false
	}
	for _, id := range r.ArxivIDs {
		if id == arxivID {
			return true
		}
	}
	if doi != "" {
		lower := strings.ToLower(doi)
		for _, d := range r.DOIs {
			if strings.ToLower(d) == lower {
				return true
			}
		}
	}
	if arxivID != "" {
		for _, u := range r.URLs {
			if strings.Contains(u, arxivID) {
				return true
			}
		}
	}
	return false
}

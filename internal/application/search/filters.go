package search

import (
	"strings"

	"needle-api/internal/domain/entity"
)

// Filters 检索结果过滤条件，全部条件取 AND 语义
type Filters struct {
	// Categories 命中任意一个分类即可（OR）
	Categories []string `json:"categories,omitempty"`
	// YearMin / YearMax 发表年份闭区间，0 表示不限
	YearMin int `json:"year_min,omitempty"`
	YearMax int `json:"year_max,omitempty"`
	// TitleKeywords 标题必须包含的关键词（全部，忽略大小写）
	TitleKeywords []string `json:"title_keywords,omitempty"`
	// AbstractKeywords 摘要必须包含的关键词（全部，忽略大小写）
	AbstractKeywords []string `json:"abstract_keywords,omitempty"`
	// AuthorName 作者名子串（忽略大小写）
	AuthorName string `json:"author_name,omitempty"`
}

// IsEmpty 是否未设置任何过滤条件
func (f *Filters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Categories) == 0 &&
		f.YearMin == 0 && f.YearMax == 0 &&
		len(f.TitleKeywords) == 0 &&
		len(f.AbstractKeywords) == 0 &&
		strings.TrimSpace(f.AuthorName) == ""
}

// Matches 判断单篇论文是否通过全部过滤条件
func (f *Filters) Matches(p *entity.Paper) bool {
	if f.IsEmpty() {
		return true
	}
	if p == nil {
		return false
	}

	if len(f.Categories) > 0 {
		cats := p.CategoryList()
		found := false
		for _, want := range f.Categories {
			for _, have := range cats {
				if have == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.YearMin > 0 || f.YearMax > 0 {
		// 日期缺失的记录不参与年份过滤，有日期但解析失败的按不命中处理
		year := p.Year()
		if strings.TrimSpace(p.LatestCreationDate) != "" {
			if year == 0 {
				return false
			}
			if f.YearMin > 0 && year < f.YearMin {
				return false
			}
			if f.YearMax > 0 && year > f.YearMax {
				return false
			}
		}
	}

	if len(f.TitleKeywords) > 0 {
		title := strings.ToLower(p.Title)
		for _, kw := range f.TitleKeywords {
			if !strings.Contains(title, strings.ToLower(kw)) {
				return false
			}
		}
	}

	if len(f.AbstractKeywords) > 0 {
		abstract := strings.ToLower(p.Abstract)
		for _, kw := range f.AbstractKeywords {
			if !strings.Contains(abstract, strings.ToLower(kw)) {
				return false
			}
		}
	}

	if name := strings.ToLower(strings.TrimSpace(f.AuthorName)); name != "" {
		if !strings.Contains(strings.ToLower(p.Authors), name) {
			return false
		}
	}

	return true
}

// Apply 过滤结果列表，保持原有排序
func (f *Filters) Apply(results []*Result) []*Result {
	if f.IsEmpty() {
		return results
	}
	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil && f.Matches(r.Paper) {
			out = append(out, r)
		}
	}
	return out
}

// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// Paper arXiv 论文元数据
type Paper struct {
	// ArxivID 即向量库中的主键，例如 "2104.08653"
	ArxivID            string    `json:"arxiv_id" gorm:"type:varchar(32);primaryKey"`
	DOI                string    `json:"doi,omitempty" gorm:"type:varchar(128);index"`
	Title              string    `json:"title" gorm:"type:text;not null"`
	Authors            string    `json:"authors" gorm:"type:text"`
	Abstract           string    `json:"abstract" gorm:"type:text"`
	Categories         string    `json:"categories" gorm:"type:varchar(256)"`
	LatestCreationDate string    `json:"latest_creation_date" gorm:"type:varchar(10)"`
	PDFURL             string    `json:"pdf_url" gorm:"type:varchar(256)"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Paper) TableName() string {
	return "papers"
}

// Year 从最新创建日期解析年份，格式 "2021-04-18"
func (p *Paper) Year() int {
	if len(p.LatestCreationDate) < 4 {
		return 0
	}
	year := 0
	for _, r := range p.LatestCreationDate[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}

// CategoryList 切分空格分隔的分类串
func (p *Paper) CategoryList() []string {
	if strings.TrimSpace(p.Categories) == "" {
		return nil
	}
	return strings.Fields(p.Categories)
}

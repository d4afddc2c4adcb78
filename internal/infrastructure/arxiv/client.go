// Package arxiv 提供 arXiv 元数据与 PDF 获取客户端
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"needle-api/internal/config"
)

var tracer = otel.Tracer("arxiv")

// maxPDFBytes 单个 PDF 下载上限
const maxPDFBytes = 64 << 20

// Metadata arXiv 论文元数据
type Metadata struct {
	ArxivID    string
	Title      string
	Authors    []string
	Summary    string
	Published  string
	Categories []string
	PDFURL     string
	DOI        string
}

// Client arXiv API 客户端
type Client struct {
	apiBase    string
	pdfBase    string
	httpClient *http.Client
}

func NewClient(cfg *config.ArxivConfig) *Client {
	return &Client{
		apiBase:    strings.TrimRight(cfg.APIBaseURL, "/"),
		pdfBase:    strings.TrimRight(cfg.PDFBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Atom feed 结构
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
	DOI        string         `xml:"doi"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// GetMetadata 按 arXiv ID 查询论文元数据
func (c *Client) GetMetadata(ctx context.Context, arxivID string) (*Metadata, error) {
	ctx, span := tracer.Start(ctx, "arxiv.GetMetadata")
	span.SetAttributes(attribute.String("arxiv_id", arxivID))
	defer span.End()

	reqURL := fmt.Sprintf("%s/query?id_list=%s", c.apiBase, url.QueryEscape(arxivID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("arxiv api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv api returned HTTP %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("parsing arxiv response: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("arxiv id %s not found", arxivID)
	}

	entry := feed.Entries[0]
	// API 对未知 ID 可能返回错误占位 entry
	if strings.Contains(entry.ID, "api/errors") {
		return nil, fmt.Errorf("arxiv id %s not found", arxivID)
	}

	meta := &Metadata{
		ArxivID:   arxivID,
		Title:     normalizeWhitespace(entry.Title),
		Summary:   normalizeWhitespace(entry.Summary),
		Published: entry.Published,
		DOI:       entry.DOI,
	}
	for _, a := range entry.Authors {
		if a.Name != "" {
			meta.Authors = append(meta.Authors, a.Name)
		}
	}
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			meta.Categories = append(meta.Categories, cat.Term)
		}
	}
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			meta.PDFURL = link.Href
			break
		}
	}
	if meta.PDFURL == "" {
		meta.PDFURL = c.PDFURL(arxivID)
	}

	return meta, nil
}

// PDFURL 构造论文 PDF 下载地址
func (c *Client) PDFURL(arxivID string) string {
	return fmt.Sprintf("%s/%s", c.pdfBase, arxivID)
}

// DownloadPDF 下载论文 PDF 原始字节
func (c *Client) DownloadPDF(ctx context.Context, arxivID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "arxiv.DownloadPDF")
	span.SetAttributes(attribute.String("arxiv_id", arxivID))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PDFURL(arxivID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("arxiv pdf request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv pdf returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading arxiv pdf: %w", err)
	}
	span.SetAttributes(attribute.Int("pdf.bytes", len(data)))
	return data, nil
}

// normalizeWhitespace 压缩 Atom 字段中的换行与连续空白
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package citations 提供论文引用数查询客户端
// 首选 OpenCitations Index，失败时回退 Crossref；两者都失败时返回 unknown，
// 引用数查询失败绝不影响上层检索流程
package citations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"needle-api/internal/config"
	"needle-api/pkg/logger"
	"needle-api/pkg/metrics"
)

var tracer = otel.Tracer("citations")

const (
	ProviderOpenCitations = "opencitations"
	ProviderCrossref      = "crossref"
)

// Count 引用数查询结果，Known 为 false 表示两个数据源都未能给出答案
type Count struct {
	Count    int    `json:"count"`
	Known    bool   `json:"known"`
	Provider string `json:"provider,omitempty"`
}

// Unknown 显式的未知结果
func Unknown() Count {
	return Count{Known: false}
}

// errNoCitationData OpenCitations 中不存在该 DOI 的引用数据
var errNoCitationData = errors.New("no citation data for doi")

// Client 引用数查询客户端
type Client struct {
	openCitationsBase string
	crossrefBase      string
	token             string
	mailto            string
	httpClient        *http.Client
}

func NewClient(cfg *config.CitationsConfig) *Client {
	return &Client{
		openCitationsBase: strings.TrimRight(cfg.OpenCitationsBaseURL, "/"),
		crossrefBase:      strings.TrimRight(cfg.CrossrefBaseURL, "/"),
		token:             cfg.OpenCitationsToken,
		mailto:            cfg.MailTo,
		httpClient:        &http.Client{Timeout: cfg.Timeout},
	}
}

// citationRecord OpenCitations Index v2 的单条引用记录
type citationRecord struct {
	OCI      string `json:"oci"`
	Citing   string `json:"citing"`
	Cited    string `json:"cited"`
	Creation string `json:"creation"`
}

// AllTime 查询论文的总被引数
func (c *Client) AllTime(ctx context.Context, doi string) Count {
	ctx, span := tracer.Start(ctx, "citations.AllTime")
	span.SetAttributes(attribute.String("doi", doi))
	defer span.End()

	records, err := c.fetchCitations(ctx, doi)
	if err == nil {
		// 按出现顺序去重引用方 DOI
		seen := make(map[string]struct{}, len(records))
		count := 0
		for _, rec := range records {
			citing := extractDOI(rec.Citing)
			if citing == "" {
				citing = rec.OCI
			}
			if _, ok := seen[citing]; ok {
				continue
			}
			seen[citing] = struct{}{}
			count++
		}
		metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "success").Inc()
		return Count{Count: count, Known: true, Provider: ProviderOpenCitations}
	}
	// 数据缺失与请求失败都回退 Crossref
	if errors.Is(err, errNoCitationData) {
		logger.Info(ctx, "doi not in opencitations index, falling back to crossref", "doi", doi)
		metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "miss").Inc()
	} else {
		logger.Warn(ctx, "opencitations lookup failed, falling back to crossref", "doi", doi, "error", err.Error())
		metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "error").Inc()
	}

	if count, ferr := c.crossrefReferencedByCount(ctx, doi); ferr == nil {
		metrics.CitationLookupTotal.WithLabelValues(ProviderCrossref, "success").Inc()
		return Count{Count: count, Known: true, Provider: ProviderCrossref}
	} else {
		logger.Warn(ctx, "crossref fallback failed", "doi", doi, "error", ferr.Error())
		metrics.CitationLookupTotal.WithLabelValues(ProviderCrossref, "error").Inc()
	}

	return Unknown()
}

// Yearly 查询论文在指定年份获得的引用数
// useCrossref 为 true 时对每条引用记录通过 Crossref 解析出版年份，
// 否则使用 OpenCitations 自带的 creation 字段
func (c *Client) Yearly(ctx context.Context, doi string, year int, useCrossref bool) Count {
	ctx, span := tracer.Start(ctx, "citations.Yearly")
	span.SetAttributes(
		attribute.String("doi", doi),
		attribute.Int("year", year),
		attribute.Bool("use_crossref", useCrossref),
	)
	defer span.End()

	records, err := c.fetchCitations(ctx, doi)
	if err != nil {
		// 按年统计只能基于 OpenCitations 的引用列表，拿不到就只能返回 unknown
		if errors.Is(err, errNoCitationData) {
			metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "miss").Inc()
		} else {
			logger.Warn(ctx, "opencitations lookup failed", "doi", doi, "error", err.Error())
			metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "error").Inc()
		}
		return Unknown()
	}
	metrics.CitationLookupTotal.WithLabelValues(ProviderOpenCitations, "success").Inc()

	count := 0
	for _, rec := range records {
		var recYear int
		if useCrossref {
			if citing := extractDOI(rec.Citing); citing != "" {
				if y, yerr := c.crossrefIssuedYear(ctx, citing); yerr == nil {
					recYear = y
				}
			}
			// Crossref 解析不出年份时退回 creation 字段
			if recYear == 0 {
				recYear = creationYear(rec.Creation)
			}
		} else {
			recYear = creationYear(rec.Creation)
		}
		if recYear == year {
			count++
		}
	}
	provider := ProviderOpenCitations
	if useCrossref {
		provider = ProviderCrossref
	}
	return Count{Count: count, Known: true, Provider: provider}
}

// fetchCitations 拉取 OpenCitations Index 的全部引用记录
func (c *Client) fetchCitations(ctx context.Context, doi string) ([]citationRecord, error) {
	timer := prometheus.NewTimer(metrics.CitationLookupDuration.WithLabelValues(ProviderOpenCitations))
	defer timer.ObserveDuration()

	reqURL := fmt.Sprintf("%s/citations/doi:%s", c.openCitationsBase, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opencitations request: %w", err)
	}
	defer resp.Body.Close()

	// 403/404 表示索引中没有该 DOI，由上层决定是否回退 Crossref
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errNoCitationData, doi)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opencitations returned HTTP %d", resp.StatusCode)
	}

	var records []citationRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing opencitations response: %w", err)
	}
	return records, nil
}

// crossrefWork Crossref /works 响应片段
type crossrefWork struct {
	Message struct {
		IsReferencedByCount int `json:"is-referenced-by-count"`
		Issued              struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	} `json:"message"`
}

func (c *Client) crossrefWork(ctx context.Context, doi string) (*crossrefWork, error) {
	timer := prometheus.NewTimer(metrics.CitationLookupDuration.WithLabelValues(ProviderCrossref))
	defer timer.ObserveDuration()

	reqURL := fmt.Sprintf("%s/works/%s", c.crossrefBase, url.PathEscape(doi))
	if c.mailto != "" {
		reqURL += "?mailto=" + url.QueryEscape(c.mailto)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "needle-api (mailto:"+c.mailto+")")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crossref returned HTTP %d", resp.StatusCode)
	}

	var work crossrefWork
	if err := json.NewDecoder(resp.Body).Decode(&work); err != nil {
		return nil, fmt.Errorf("parsing crossref response: %w", err)
	}
	return &work, nil
}

func (c *Client) crossrefReferencedByCount(ctx context.Context, doi string) (int, error) {
	work, err := c.crossrefWork(ctx, doi)
	if err != nil {
		return 0, err
	}
	return work.Message.IsReferencedByCount, nil
}

func (c *Client) crossrefIssuedYear(ctx context.Context, doi string) (int, error) {
	work, err := c.crossrefWork(ctx, doi)
	if err != nil {
		return 0, err
	}
	parts := work.Message.Issued.DateParts
	if len(parts) == 0 || len(parts[0]) == 0 {
		return 0, fmt.Errorf("crossref issued date missing for %s", doi)
	}
	return parts[0][0], nil
}

// extractDOI 从 OpenCitations 的多标识符串中取出 DOI
// 例如 "omid:br/06150903000 doi:10.1016/j.joi.2019.11.002" -> "10.1016/j.joi.2019.11.002"
func extractDOI(identifiers string) string {
	for _, field := range strings.Fields(identifiers) {
		if strings.HasPrefix(field, "doi:") {
			return strings.TrimPrefix(field, "doi:")
		}
	}
	return ""
}

// creationYear 解析 creation 字段的年份，格式 "2021" 或 "2021-04" 或 "2021-04-18"
func creationYear(creation string) int {
	if len(creation) < 4 {
		return 0
	}
	year, err := strconv.Atoi(creation[:4])
	if err != nil {
		return 0
	}
	return year
}

// Package service 封装三家外部行情源：天天基金估值、基金档案重仓股、腾讯股票行情。
// 估值是必须的，后两步都是尽力而为，拿不到就降级，不让整次拉取失败。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fund-watch-server/internal/models"
	"fund-watch-server/internal/trace"
	"fund-watch-server/pkg/utils"

	"github.com/tidwall/gjson"
)

// 上游地址
const (
	defaultGzBase     = "https://fundgz.1234567.com.cn"
	defaultF10Base    = "https://fundf10.eastmoney.com"
	defaultQuoteBase  = "https://qt.gtimg.cn"
	defaultSearchBase = "https://fundsuggest.eastmoney.com"
)

const (
	fetchTimeout   = 5 * time.Second // 估值接口的硬超时
	maxHoldings    = 10
	quoteChangeIdx = 5 // 腾讯行情 ~ 分隔串里第 5 位（0 起）是涨跌幅
)

// 伪装浏览器 Header，防止反爬
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36"

// ErrValuationUnavailable 估值阶段失败，整次拉取失败
var ErrValuationUnavailable = errors.New("未获取到基金估值数据")

var (
	rowRe       = regexp.MustCompile(`(?is)<tr[^>]*>.*?</tr>`)
	cellRe      = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	stockCodeRe = regexp.MustCompile(`^\d{6}$`)
	weightRe    = regexp.MustCompile(`\d+(?:\.\d+)?\s*%`)
)

// Fetcher 按基金代码组装一条完整记录，除网络请求外没有副作用
type Fetcher struct {
	HTTPClient *http.Client

	// 测试时指向 httptest 服务
	GzBase     string
	F10Base    string
	QuoteBase  string
	SearchBase string
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{Timeout: fetchTimeout},
		GzBase:     defaultGzBase,
		F10Base:    defaultF10Base,
		QuoteBase:  defaultQuoteBase,
		SearchBase: defaultSearchBase,
	}
}

// FetchFundData 三段式拉取：估值（必须）→ 重仓股（尽力）→ 个股行情（尽力）。
// 合并由调用方负责，这里不碰共享状态。
func (f *Fetcher) FetchFundData(ctx context.Context, code string) (*models.FundRecord, error) {
	rec, err := f.fetchValuation(ctx, code)
	if err != nil {
		return nil, err
	}

	holdings, err := f.fetchHoldings(ctx, code)
	if err != nil {
		trace.Log(ctx, "service: 获取基金 %s 持仓失败 err=%v", code, err)
		holdings = nil
	}
	if len(holdings) > 0 {
		f.enrichQuotes(ctx, holdings)
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}
	rec.Holdings = holdings
	return rec, nil
}

// fetchValuation 天天基金估值接口，jsonpgz 包装的 JSON
func (f *Fetcher) fetchValuation(ctx context.Context, code string) (*models.FundRecord, error) {
	url := fmt.Sprintf("%s/js/%s.js?rt=%d", f.GzBase, code, time.Now().UnixMilli())
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValuationUnavailable, err)
	}
	jsonStr := utils.ParseJSONP(string(body))
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return nil, ErrValuationUnavailable
	}
	v := gjson.Parse(jsonStr)
	fundCode := v.Get("fundcode").String()
	if fundCode == "" {
		return nil, ErrValuationUnavailable
	}
	return &models.FundRecord{
		Code:     fundCode,
		Name:     v.Get("name").String(),
		NetValue: v.Get("dwjz").String(),
		EstValue: v.Get("gsz").String(),
		EstPct:   models.ParseChangePct(v.Get("gszzl").String()),
		EstTime:  v.Get("gztime").String(),
	}, nil
}

// fetchHoldings 基金档案前十大重仓股，返回的是一段表格 HTML。
// 一行必须同时有 6 位股票代码和百分比占比才算有效，按披露顺序截前 10 条。
func (f *Fetcher) fetchHoldings(ctx context.Context, code string) ([]models.Holding, error) {
	url := fmt.Sprintf("%s/FundArchivesDatas.aspx?type=jjcc&code=%s&topline=10&year=&month=&rt=%d",
		f.F10Base, code, time.Now().UnixMilli())
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseHoldingsTable(string(body)), nil
}

// ParseHoldingsTable 从表格标记里抽取重仓股
func ParseHoldingsTable(html string) []models.Holding {
	var holdings []models.Holding
	for _, row := range rowRe.FindAllString(html, -1) {
		var cells []string
		for _, m := range cellRe.FindAllStringSubmatch(row, -1) {
			cells = append(cells, strings.TrimSpace(tagRe.ReplaceAllString(m[1], "")))
		}
		codeIdx, weightIdx := -1, -1
		for i, c := range cells {
			if codeIdx < 0 && stockCodeRe.MatchString(c) {
				codeIdx = i
			}
			if weightIdx < 0 && weightRe.MatchString(c) {
				weightIdx = i
			}
		}
		if codeIdx < 0 || weightIdx < 0 {
			continue
		}
		name := ""
		if codeIdx+1 < len(cells) {
			name = cells[codeIdx+1]
		}
		holdings = append(holdings, models.Holding{
			StockCode: cells[codeIdx],
			StockName: name,
			Weight:    cells[weightIdx],
		})
		if len(holdings) == maxHoldings {
			break
		}
	}
	return holdings
}

// MarketPrefix 按股票代码首位选市场前缀：6/9 沪，0/3 深，4/8 北交所，默认深
func MarketPrefix(code string) string {
	switch {
	case strings.HasPrefix(code, "6"), strings.HasPrefix(code, "9"):
		return "sh"
	case strings.HasPrefix(code, "0"), strings.HasPrefix(code, "3"):
		return "sz"
	case strings.HasPrefix(code, "4"), strings.HasPrefix(code, "8"):
		return "bj"
	default:
		return "sz"
	}
}

// enrichQuotes 批量查持仓股实时涨跌幅并就地填充。
// 整个请求失败时所有持仓保持原值；单只解析失败只影响那一只。
func (f *Fetcher) enrichQuotes(ctx context.Context, holdings []models.Holding) {
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, "s_"+MarketPrefix(h.StockCode)+h.StockCode)
	}
	url := fmt.Sprintf("%s/q=%s", f.QuoteBase, strings.Join(symbols, ","))
	body, err := f.get(ctx, url)
	if err != nil {
		trace.Log(ctx, "service: 批量行情失败 err=%v", err)
		return
	}
	quotes := ParseQuotes(string(body))
	for i := range holdings {
		key := "s_" + MarketPrefix(holdings[i].StockCode) + holdings[i].StockCode
		if pct, ok := quotes[key]; ok {
			v := pct
			holdings[i].ChangePct = &v
		}
	}
}

// ParseQuotes 解析 v_s_sh600519="1~贵州茅台~600519~...~涨跌幅~..."; 风格的返回，
// 按符号名建索引，值取 ~ 分隔后的第 quoteChangeIdx 位
func ParseQuotes(body string) map[string]float64 {
	out := make(map[string]float64)
	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "v_") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		name := strings.TrimPrefix(line[:eq], "v_")
		val := strings.Trim(strings.TrimSpace(line[eq+1:]), `"`)
		parts := strings.Split(val, "~")
		if len(parts) <= quoteChangeIdx {
			continue
		}
		pct, err := strconv.ParseFloat(parts[quoteChangeIdx], 64)
		if err != nil {
			continue
		}
		out[name] = pct
	}
	return out
}

// get 通用 GET，请求挂在 ctx 上，客户端自带超时兜底
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://fund.eastmoney.com/")
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

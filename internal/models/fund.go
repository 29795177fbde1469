package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChangePct 估算涨跌幅：接口给的是字符串，能解析成数字就按数字用，
// 解析不了（比如 "--"）就原样透传，不丢数据
type ChangePct struct {
	Value float64
	Raw   string
	Valid bool
}

func ParseChangePct(s string) ChangePct {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return ChangePct{Value: v, Raw: s, Valid: true}
	}
	return ChangePct{Raw: s}
}

func (p ChangePct) MarshalJSON() ([]byte, error) {
	if p.Valid {
		return json.Marshal(p.Value)
	}
	return json.Marshal(p.Raw)
}

func (p *ChangePct) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*p = ChangePct{Value: v, Raw: string(b), Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = ParseChangePct(s)
	return nil
}

// Holding 基金的一只重仓股
type Holding struct {
	StockCode string   `json:"code"`
	StockName string   `json:"name"`
	Weight    string   `json:"weight"` // 持仓占比，保留接口原始格式，如 "9.84%"
	ChangePct *float64 `json:"change"` // 实时涨跌幅，行情没取到时为 null
}

// FundRecord 一只基金的最新缓存状态，字段名沿用天天基金估值接口
type FundRecord struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	NetValue string    `json:"dwjz"`   // 最新确权单位净值
	EstValue string    `json:"gsz"`    // 盘中估算净值
	EstPct   ChangePct `json:"gszzl"`  // 估算涨跌幅
	EstTime  string    `json:"gztime"` // 估值时间，接口原样
	Holdings []Holding `json:"holdings"`
}

// AddFailure 批量添加时单个代码的失败信息，name 是调用方已知的名称提示
type AddFailure struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// AddResult 批量添加的结果，调用方据此展示成功/失败反馈
type AddResult struct {
	Added    int          `json:"added"`
	Failures []AddFailure `json:"failures"`
}

// FundSearchResult 搜索联想结果
type FundSearchResult struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExportPayload 导出/导入的快照格式
type ExportPayload struct {
	Version    int          `json:"version"`
	Funds      []FundRecord `json:"funds"`
	RefreshMs  int64        `json:"refreshMs"`
	ExportedAt string       `json:"exportedAt"`
}

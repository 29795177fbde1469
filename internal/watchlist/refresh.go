package watchlist

import (
	"context"
	"errors"
	"sync/atomic"

	"fund-watch-server/internal/models"
	"fund-watch-server/internal/trace"
)

// FundFetcher 拉取单只基金的完整记录
type FundFetcher interface {
	FetchFundData(ctx context.Context, code string) (*models.FundRecord, error)
}

// Controller 刷新控制器：同一时刻只跑一轮，单只失败互不影响，
// 结果攒齐后一次性合并落库。
type Controller struct {
	fetcher    FundFetcher
	mgr        *Manager
	refreshing atomic.Bool
}

func NewController(fetcher FundFetcher, mgr *Manager) *Controller {
	return &Controller{fetcher: fetcher, mgr: mgr}
}

// Refreshing 当前是否有刷新周期在跑
func (c *Controller) Refreshing() bool {
	return c.refreshing.Load()
}

// Refresh 刷新一批代码。已有周期在跑时直接返回，不排队也不重试。
// 单只失败只记日志，旧缓存原样保留，其余代码照常尝试。
func (c *Controller) Refresh(ctx context.Context, codes []string) {
	codes = uniqueCodes(codes)
	if len(codes) == 0 {
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		trace.Log(ctx, "watchlist: 上一轮刷新还没结束，本次跳过")
		return
	}
	defer c.refreshing.Store(false)

	updated := make([]models.FundRecord, 0, len(codes))
	for _, code := range codes {
		rec, err := c.fetcher.FetchFundData(ctx, code)
		if err != nil {
			trace.Log(ctx, "watchlist: 刷新基金 %s 失败 err=%v", code, err)
			continue
		}
		updated = append(updated, *rec)
	}
	if len(updated) == 0 {
		return
	}
	if _, err := c.mgr.MergeRefreshed(updated); err != nil {
		trace.Log(ctx, "watchlist: 刷新结果落库失败 err=%v", err)
	}
}

// ManualRefresh 手动刷新，范围是当前全部关注代码
func (c *Controller) ManualRefresh(ctx context.Context) {
	c.Refresh(ctx, c.mgr.Codes())
}

// AddByCodes 逐个拉取候选代码并批量入列。已关注的直接跳过；
// 拉取失败的带上调用方给的名称提示一起返回。一个都没加进来时返回 ErrNoNewItems。
func (c *Controller) AddByCodes(ctx context.Context, codes []string, nameHints map[string]string) (*models.AddResult, error) {
	res := &models.AddResult{Failures: []models.AddFailure{}}
	fresh := make([]models.FundRecord, 0, len(codes))
	for _, code := range uniqueCodes(codes) {
		if c.mgr.Has(code) {
			continue
		}
		rec, err := c.fetcher.FetchFundData(ctx, code)
		if err != nil {
			trace.Log(ctx, "watchlist: 添加基金 %s 失败 err=%v", code, err)
			res.Failures = append(res.Failures, models.AddFailure{Code: code, Name: nameHints[code]})
			continue
		}
		fresh = append(fresh, *rec)
	}
	if len(fresh) == 0 {
		return res, ErrNoNewItems
	}
	if _, err := c.mgr.Add(fresh); err != nil && !errors.Is(err, ErrNoNewItems) {
		return res, err
	}
	res.Added = len(fresh)
	return res, nil
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

package service

import (
	"context"
	"fmt"
	"net/url"

	"fund-watch-server/internal/models"

	"github.com/tidwall/gjson"
)

// 搜索接口里基金类目的编号
const categoryFund = 700

// SearchFund 模糊搜索基金，只保留基金类目的结果
func (f *Fetcher) SearchFund(ctx context.Context, keyword string) ([]models.FundSearchResult, error) {
	api := fmt.Sprintf("%s/FundSearch/api/FundSearchAPI.ashx?m=1&key=%s", f.SearchBase, url.QueryEscape(keyword))
	body, err := f.get(ctx, api)
	if err != nil {
		return nil, err
	}

	var list []models.FundSearchResult
	for _, item := range gjson.GetBytes(body, "Datas").Array() {
		if item.Get("CATEGORY").Int() != categoryFund && item.Get("CATEGORYDESC").String() != "基金" {
			continue
		}
		list = append(list, models.FundSearchResult{
			Code: item.Get("CODE").String(),
			Name: item.Get("NAME").String(),
			Type: item.Get("CATEGORYDESC").String(),
		})
	}
	return list, nil
}

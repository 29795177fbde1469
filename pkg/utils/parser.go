package utils

import (
	"strings"
)

// ParseJSONP 提取 jsonpgz({...}) 一类回调包装里的 JSON 内容，
// 找不到成对的大括号就返回空串
func ParseJSONP(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && start < end {
		return raw[start : end+1]
	}
	return ""
}

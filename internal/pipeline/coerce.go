package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// FieldClass 字段值类别，决定用户输入如何转换
type FieldClass int

const (
	ClassString FieldClass = iota
	ClassNumeric
	ClassList
)

func fieldClassOf(field string) FieldClass {
	switch field {
	case "price", "compareAtPrice", "weight":
		return ClassNumeric
	case "tags", "bulletPoints", "searchTerms":
		return ClassList
	}
	return ClassString
}

// Coerce 将原始输入按字段类别转换，纯函数
func Coerce(field, raw string) any {
	switch fieldClassOf(field) {
	case ClassNumeric:
		return CoerceNumeric(raw)
	case ClassList:
		return CoerceList(raw)
	}
	return raw
}

// CoerceNumeric 解析失败返回 nil，不接受 NaN/Inf
func CoerceNumeric(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// CoerceList 逗号分隔，去空白，丢弃空项，保持顺序
func CoerceList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

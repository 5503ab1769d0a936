package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sadhurshan/esai-sub000/internal/rag"
)

const dateLayout = "2006-01-02"

const (
	// maxLeadDays 交期/周期类天数上限，保证推算日期仍为四位年份
	maxLeadDays = 3650
	// maxPaymentTermDays 账期天数上限
	maxPaymentTermDays = 365

	defaultLeadDays = 14

	minDateYear = 1900
	maxDateYear = 9000
)

// args 结构化输入的安全读取
type args map[string]any

func asArgs(v any) args {
	switch t := v.(type) {
	case map[string]any:
		return args(t)
	case args:
		return t
	default:
		return args{}
	}
}

// str 依次读取键，返回第一个非空字符串，否则返回 def
func (a args) str(def string, keys ...string) string {
	for _, key := range keys {
		if s := toString(a[key]); s != "" {
			return s
		}
	}
	return def
}

// num 依次读取键并安全转换为数字
func (a args) num(def float64, keys ...string) float64 {
	for _, key := range keys {
		if f, ok := toFloat(a[key]); ok {
			return f
		}
	}
	return def
}

// has 是否提供了任一键的非空值
func (a args) has(keys ...string) bool {
	for _, key := range keys {
		if v, ok := a[key]; ok && v != nil && toString(v) != "" {
			return true
		}
	}
	return false
}

// leadTimeDays 交期天数，非正值回落到 14 天，上限 maxLeadDays
func leadTimeDays(in args, def int, keys ...string) int {
	if d := in.days(def, maxLeadDays, keys...); d > 0 {
		return d
	}
	return defaultLeadDays
}

// days 读取天数并夹在 [0, hi]，超界值在转 int 前截断
func (a args) days(def, hi int, keys ...string) int {
	return int(math.Round(clamp(a.num(float64(def), keys...), 0, float64(hi))))
}

func (a args) boolean(def bool, keys ...string) bool {
	for _, key := range keys {
		switch t := a[key].(type) {
		case bool:
			return t
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "y", "1":
				return true
			case "false", "no", "n", "0":
				return false
			}
		case float64:
			return t != 0
		case int:
			return t != 0
		}
	}
	return def
}

// strs 读取字符串列表，兼容逗号分隔的字符串
func (a args) strs(keys ...string) []string {
	for _, key := range keys {
		switch t := a[key].(type) {
		case []string:
			return cleanStrings(t)
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				out = append(out, toString(item))
			}
			return cleanStrings(out)
		case string:
			if strings.TrimSpace(t) != "" {
				return cleanStrings(strings.Split(t, ","))
			}
		}
	}
	return []string{}
}

// list 读取对象列表
func (a args) list(keys ...string) []args {
	for _, key := range keys {
		switch t := a[key].(type) {
		case []any:
			out := make([]args, 0, len(t))
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					out = append(out, args(m))
				}
			}
			if len(out) > 0 {
				return out
			}
		case []map[string]any:
			out := make([]args, 0, len(t))
			for _, m := range t {
				out = append(out, args(m))
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// sub 读取子对象
func (a args) sub(keys ...string) args {
	for _, key := range keys {
		if m, ok := a[key].(map[string]any); ok {
			return args(m)
		}
	}
	return args{}
}

// date 读取日期并规范为 YYYY-MM-DD，无法解析时使用 fallback
func (a args) date(fallback time.Time, keys ...string) string {
	for _, key := range keys {
		if d, ok := parseDate(toString(a[key])); ok {
			return d.Format(dateLayout)
		}
	}
	return fallback.Format(dateLayout)
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{dateLayout, time.RFC3339, "2006/01/02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			// 年份过大时叠加天数会溢出四位年份
			if t.Year() < minDateYear || t.Year() > maxDateYear {
				return time.Time{}, false
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// mustParse 解析已规范化的日期字符串
func mustParse(s string) time.Time {
	t, _ := parseDate(s)
	return t
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool, int, int64, int32:
		return fmt.Sprint(t)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		cleaned := strings.NewReplacer(",", "", "$", "", "%", "").Replace(strings.TrimSpace(t))
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mergeUnique 保序去重合并，最多保留 limit 项
func mergeUnique(limit int, lists ...[]string) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			key := strings.ToLower(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// unitFraction 0-1 之间的比例，大于 1 视为百分数
func unitFraction(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	return clamp(v, 0, 1)
}

func currency(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if len(v) != 3 {
		return "USD"
	}
	for _, r := range v {
		if r < 'A' || r > 'Z' {
			return "USD"
		}
	}
	return v
}

func enumOr(v string, def string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}

// contextMeta 从检索上下文元数据中按键查找第一个非空值
func contextMeta(contexts []rag.ContextBlock, keys ...string) string {
	for _, block := range contexts {
		for _, key := range keys {
			if s := toString(block.Metadata[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

// contextTitles 上下文标题，保序去重
func contextTitles(contexts []rag.ContextBlock, limit int) []string {
	titles := make([]string, 0, len(contexts))
	for _, block := range contexts {
		t := block.Title
		if t == "" {
			t = block.DocID
		}
		titles = append(titles, t)
	}
	return mergeUnique(limit, titles)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// paymentTermDays 解析 "Net 45" 一类的账期天数
func paymentTermDays(terms string, def int) int {
	fields := strings.Fields(strings.ToLower(terms))
	for i, f := range fields {
		if f == "net" && i+1 < len(fields) {
			if n, err := strconv.Atoi(strings.Trim(fields[i+1], ",.;")); err == nil && n >= 0 {
				return min(n, maxPaymentTermDays)
			}
		}
	}
	return def
}

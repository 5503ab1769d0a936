package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TenantID 租户标识，兼容 JSON 字符串和数字两种写法
type TenantID string

// UnmarshalJSON 接受 "42" 或 42
func (t *TenantID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TenantID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tenant 必须是字符串或数字: %w", err)
	}
	*t = TenantID(n.String())
	return nil
}

// String 实现 fmt.Stringer
func (t TenantID) String() string {
	return string(t)
}

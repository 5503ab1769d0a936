package common

// APIResponse 通用响应结构，用于封装成功或失败结果。
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse 写操作的简单确认，如 {status:"ok", indexed_chunks:N}
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse 统一错误返回结构。
type ErrorResponse struct {
	Success   bool     `json:"success"`
	Code      string   `json:"code,omitempty"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// 错误码
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal_error"
)

// StatusOK 成功状态字面量
const StatusOK = "ok"

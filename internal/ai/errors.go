package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// maxErrorBody 错误响应体截断长度
const maxErrorBody = 500

// ErrorType 错误分类
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeInvalid   ErrorType = "invalid_request"
	ErrorTypeServer    ErrorType = "server_error"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeMalformed ErrorType = "malformed_response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// ProviderConfigError 外部依赖未配置（如缺少凭证）
type ProviderConfigError struct {
	Provider string
	Message  string
}

func (e *ProviderConfigError) Error() string {
	return fmt.Sprintf("%s 未配置: %s", e.Provider, e.Message)
}

// ProviderResponseError 传输失败、超时、非 2xx 或响应格式错误
type ProviderResponseError struct {
	Provider   string
	Type       ErrorType
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *ProviderResponseError) Error() string {
	msg := fmt.Sprintf("%s 调用失败 [%s]", e.Provider, e.Type)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	return msg
}

func (e *ProviderResponseError) Unwrap() error {
	return e.Err
}

// IsProviderError 是否为可降级的外部提供方错误
func IsProviderError(err error) bool {
	var cfgErr *ProviderConfigError
	var respErr *ProviderResponseError
	return errors.As(err, &cfgErr) || errors.As(err, &respErr)
}

// Retryable 限流、服务端错误与网络超时可重试
func (e *ProviderResponseError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// wrapError 把 go-openai 与传输层错误归类为 ProviderResponseError
func wrapError(provider string, err error) *ProviderResponseError {
	out := &ProviderResponseError{Provider: provider, Type: ErrorTypeUnknown, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
		out.Type = classifyStatus(apiErr.HTTPStatusCode)
		// SDK 已解析掉原始响应体，按 {"error": ...} 还原
		if raw, mErr := json.Marshal(openai.ErrorResponse{Error: apiErr}); mErr == nil {
			out.Body = truncateBody(string(raw))
		}
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		out.Body = truncateBody(string(reqErr.Body))
		out.Type = classifyStatus(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			out.Message = reqErr.Err.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		out.Type = ErrorTypeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Type = ErrorTypeTimeout
	case errors.As(err, &netErr):
		out.Type = ErrorTypeNetwork
	}
	return out
}

func classifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeServer
	case status >= 400:
		return ErrorTypeInvalid
	default:
		return ErrorTypeUnknown
	}
}

func truncateBody(body string) string {
	if utf8.RuneCountInString(body) <= maxErrorBody {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxErrorBody]) + "..."
}

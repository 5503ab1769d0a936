package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/sadhurshan/esai-sub000/internal/actions"
	"github.com/sadhurshan/esai-sub000/internal/logger"
	"github.com/sadhurshan/esai-sub000/internal/middleware"
	"github.com/sadhurshan/esai-sub000/internal/rag"
	"github.com/sadhurshan/esai-sub000/internal/schema"
	"github.com/sadhurshan/esai-sub000/internal/tools"
	"github.com/sadhurshan/esai-sub000/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	// 校验错误使用 JSON 字段名
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// BindJSON 绑定请求体，失败时写入 422 并返回 false
func BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Success:   false,
			Code:      CodeValidation,
			Message:   "参数错误",
			Details:   bindingDetails(err),
			RequestID: middleware.GetRequestIDFromGin(c),
		})
		return false
	}
	return true
}

// bindingDetails 把绑定错误转换为字段级明细
func bindingDetails(err error) []string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldDetail(fe))
		}
		return details
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return []string{fmt.Sprintf("%s: 期望类型 %s，实际为 %s", field, typeErr.Type, typeErr.Value)}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return []string{fmt.Sprintf("body: JSON 格式错误，位置 %d", syntaxErr.Offset)}
	}
	if errors.Is(err, io.EOF) {
		return []string{"body: 请求体不能为空"}
	}
	return []string{err.Error()}
}

func fieldDetail(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return ns + ": 必填"
	case "min", "gte":
		return fmt.Sprintf("%s: 不能小于 %s", ns, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s: 不能大于 %s", ns, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: 取值必须为 [%s] 之一", ns, fe.Param())
	default:
		return fmt.Sprintf("%s: 未通过 %s 校验", ns, fe.Tag())
	}
}

// StatusFor 错误到 HTTP 状态码和错误码的映射
func StatusFor(err error) (int, string) {
	var validationErr *schema.ValidationError
	var engineErr *workflow.EngineError
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &validationErr),
		errors.Is(err, workflow.ErrInvalidArgument),
		errors.Is(err, rag.ErrInvalidArgument),
		errors.Is(err, actions.ErrUnknownAction):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.As(err, &engineErr),
		errors.Is(err, tools.ErrSideEffectBlocked),
		errors.Is(err, tools.ErrUnknownTool):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// RespondError 按错误类型写入统一错误响应
// 未知错误只返回通用信息，完整错误记录在日志中
func RespondError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	requestID := middleware.GetRequestIDFromGin(c)
	resp := ErrorResponse{Success: false, Code: code, RequestID: requestID}

	switch status {
	case http.StatusInternalServerError:
		logger.WithContext(c.Request.Context()).Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		resp.Message = "internal error"
	case http.StatusUnprocessableEntity:
		resp.Message = "参数错误"
		var validationErr *schema.ValidationError
		if errors.As(err, &validationErr) {
			resp.Details = validationErr.Details()
		} else {
			resp.Details = []string{err.Error()}
		}
	default:
		resp.Message = err.Error()
	}
	c.JSON(status, resp)
}

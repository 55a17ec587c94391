package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/timesheet-gin/internal/service"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// StatusForKind 服务层错误分类对应的 HTTP 状态码
func StatusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindInvalidTransition, service.KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 将错误写为统一错误响应,内部错误不向调用方暴露原因
func RespondError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
		return
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status := StatusForKind(svcErr.Kind)
		if status == http.StatusInternalServerError {
			Error(c, status, "internal server error", "")
			return
		}
		ErrorWithDetails(c, status, svcErr.Message, string(svcErr.Kind), svcErr.Details)
		return
	}

	GetLogger().WithError(err).WithField("request_id", c.GetString("request_id")).Error("Unhandled error")
	Error(c, http.StatusInternalServerError, "internal server error", "")
}

// ErrorHandlerMiddleware 处理控制器通过 c.Error 挂载的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			RespondError(c, c.Errors.Last().Err)
		}
	}
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodeQuotaExceeded    = 1002
	CodeDuplicateCharge  = 1003
	CodeResourceNotFound = 1004
	CodeServerError      = 5000
)

// 错误码对应的默认消息（用户可见文案用俄语，与小程序前端一致）
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "Неверные параметры запроса",
	CodeAuthFailed:       "Ошибка авторизации",
	CodeQuotaExceeded:    "Бесплатные попытки закончились",
	CodeDuplicateCharge:  "Платеж уже обработан",
	CodeResourceNotFound: "Не найдено",
	CodeServerError:      "Ошибка сервера",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应。配额、重复支付等业务性结果仍返回 HTTP 200，
// 只有基础设施故障才用 5xx（让 Telegram 重新投递 webhook）。
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	status := http.StatusOK
	if code == CodeServerError {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// QuotaError 配额耗尽（正常业务结果，非错误）
func QuotaError(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeQuotaExceeded,
		Message: codeMessages[CodeQuotaExceeded],
		Data:    data,
	})
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// ServerError 服务器错误，内部细节不下发给用户
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

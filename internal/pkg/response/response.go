package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务码，HTTP 状态恒为 200，客户端只看 code
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeDuplicateAction  = 1005
	CodeLocked           = 1006
	CodePasswordRequired = 1007
	CodeServerError      = 5000
	CodeUnavailable      = 5003
)

var defaultText = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodePermissionDenied: "权限不足",
	CodeResourceNotFound: "资源不存在",
	CodeQuotaExceeded:    "配额不足",
	CodeDuplicateAction:  "重复操作",
	CodeLocked:           "账户已锁定",
	CodePasswordRequired: "需要密码",
	CodeServerError:      "服务器内部错误",
	CodeUnavailable:      "服务暂时不可用",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Text 返回业务码的默认消息，未知码返回空串
func Text(code int) string {
	return defaultText[code]
}

func write(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = Text(code)
	}
	c.JSON(http.StatusOK, Response{Code: code, Message: message, Data: data})
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	write(c, CodeSuccess, "", data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	write(c, CodeSuccess, message, data)
}

// Error 错误响应，message 为空时使用默认消息
func Error(c *gin.Context, code int, message string) {
	write(c, code, message, nil)
}

// ErrorWithData 拒绝结果仍需带回会话状态
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	write(c, code, message, data)
}

// 以下为常用业务码的快捷方式
func ParamError(c *gin.Context, message string)       { Error(c, CodeParamError, message) }
func AuthError(c *gin.Context, message string)        { Error(c, CodeAuthFailed, message) }
func PermissionError(c *gin.Context, message string)  { Error(c, CodePermissionDenied, message) }
func NotFoundError(c *gin.Context, message string)    { Error(c, CodeResourceNotFound, message) }
func DuplicateError(c *gin.Context, message string)   { Error(c, CodeDuplicateAction, message) }
func ServerError(c *gin.Context, message string)      { Error(c, CodeServerError, message) }
func UnavailableError(c *gin.Context, message string) { Error(c, CodeUnavailable, message) }

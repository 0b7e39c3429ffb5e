package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeEmailExists        = 40002
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeAccountInactive    = 40102
	CodeForbidden          = 40300
	CodeRateLimited        = 42900
	CodeSessionNotFound    = 40401
	CodeInternalServer     = 50000
	CodeUpstreamFailure    = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
// 1000-1099 余额相关，1100-1199 代币池，1200-1299 奖励，
// 1300-1399 销毁决议，1400-1499 治理，1500-1599 SFRT
const (
	CodeBalanceNotFound     = 1001
	CodeBalanceNotEnough    = 1002
	CodeBalanceInvariant    = 1003
	CodeBalanceFrozen       = 1004
	CodePoolNotFound        = 1101
	CodePoolInactive        = 1102
	CodeMaxSupplyExceeded   = 1103
	CodePoolNotEnough       = 1104
	CodeRewardNotFound      = 1201
	CodeRewardStatusInvalid = 1202
	CodeRewardDuplicate     = 1203
	CodeBurnNotFound        = 1301
	CodeBurnStatusInvalid   = 1302
	CodeProposalNotFound    = 1401
	CodeProposalStatus      = 1402
	CodeVotingClosed        = 1403
	CodeDuplicateVote       = 1404
	CodeSfrtNotEnough       = 1501
	CodeSfrtDuplicate       = 1502
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

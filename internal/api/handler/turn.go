package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/himera_gate_server/internal/api/middleware"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/pkg/response"
	"github.com/qs3c/himera_gate_server/internal/service"
)

type TurnHandler struct {
	chatService   *service.ChatService
	accessService *service.AccessService
}

func NewTurnHandler(chatService *service.ChatService, accessService *service.AccessService) *TurnHandler {
	return &TurnHandler{
		chatService:   chatService,
		accessService: accessService,
	}
}

// Create 处理用户的一条消息
// POST /api/v1/turns
func (h *TurnHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	reply, err := h.chatService.Reply(c.Request.Context(), userID, req.Text)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}

	resp := toTurnResponse(reply)
	if reply.Result.Outcome == service.OutcomeDenied {
		response.ErrorWithData(c, denyCode(reply.Result.Reason), reply.Result.Message, resp)
		return
	}
	response.Success(c, resp)
}

// Status 当前授权与配额
// GET /api/v1/status
func (h *TurnHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	resp, err := h.accessService.Status(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, resp)
}

// Logout 主动退出付费授权
// POST /api/v1/logout
func (h *TurnHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	loggedOut, err := h.accessService.Logout(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, &dto.LogoutResponse{
		LoggedOut: loggedOut,
		Message:   service.LogoutMessage(loggedOut),
	})
}

func toTurnResponse(reply *service.ChatReply) *dto.TurnResponse {
	r := reply.Result
	resp := &dto.TurnResponse{
		Outcome:           string(r.Outcome),
		Reason:            string(r.Reason),
		State:             string(r.State),
		Message:           r.Message,
		Notice:            r.Notice,
		Reply:             reply.Reply,
		Emotion:           reply.Emotion,
		AuthorizedUntil:   r.AuthorizedUntil,
		RemainingAttempts: r.RemainingAttempts,
	}
	if r.LockRemaining > 0 {
		resp.LockSeconds = int64(r.LockRemaining.Seconds())
	}
	return resp
}

func denyCode(reason service.DenyReason) int {
	switch reason {
	case service.ReasonLocked:
		return response.CodeLocked
	case service.ReasonPasswordRequired:
		return response.CodePasswordRequired
	case service.ReasonQuotaExceeded:
		return response.CodeQuotaExceeded
	default:
		return response.CodePermissionDenied
	}
}

// writeServiceError 将服务层错误映射为响应码，原始错误挂到上下文由请求日志输出
func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, service.ErrStorageUnavailable):
		response.UnavailableError(c, service.ServiceErrorMessage(err))
	case errors.Is(err, service.ErrGeneratorFailed):
		response.ServerError(c, service.ServiceErrorMessage(err))
	case errors.Is(err, service.ErrDuplicateCredential):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrInvalidDuration), errors.Is(err, service.ErrEmptyCredential):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/himera_gate_server/internal/api/middleware"
	"github.com/qs3c/himera_gate_server/internal/model/dto"
	"github.com/qs3c/himera_gate_server/internal/pkg/response"
	"github.com/qs3c/himera_gate_server/internal/service"
)

type AdminHandler struct {
	adminService      *service.AdminService
	credentialService *service.CredentialService
	housekeeper       *service.HousekeepingService
}

func NewAdminHandler(adminService *service.AdminService, credentialService *service.CredentialService, housekeeper *service.HousekeepingService) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		credentialService: credentialService,
		housekeeper:       housekeeper,
	}
}

// AddCredential 新增口令
// POST /api/v1/admin/credentials
func (h *AdminHandler) AddCredential(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req dto.AddCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	cred, err := h.credentialService.Add(c.Request.Context(), actorID, req.Text, req.DurationDays, req.Description)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.SuccessWithMessage(c, "创建成功", service.ToCredentialInfo(cred, true))
}

// ListCredentials 口令列表，full=true 时返回明文
// GET /api/v1/admin/credentials
func (h *AdminHandler) ListCredentials(c *gin.Context) {
	showFull, _ := strconv.ParseBool(c.Query("full"))

	items, err := h.credentialService.List(c.Request.Context(), showFull)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, items)
}

// DeactivateCredential 停用口令
// POST /api/v1/admin/credentials/deactivate
func (h *AdminHandler) DeactivateCredential(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req dto.DeactivateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	found, err := h.credentialService.Deactivate(c.Request.Context(), actorID, req.Text)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	if !found {
		response.NotFoundError(c, "口令不存在")
		return
	}
	response.SuccessWithMessage(c, "已停用", nil)
}

// Stats 口令与用户统计
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, stats)
}

// Blocked 当前被锁定的用户
// GET /api/v1/admin/blocked
func (h *AdminHandler) Blocked(c *gin.Context) {
	users, err := h.adminService.BlockedUsers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, users)
}

// Unblock 解除锁定
// POST /api/v1/admin/unblock
func (h *AdminHandler) Unblock(c *gin.Context) {
	actorID, _ := middleware.GetUserID(c)

	var req dto.UnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	lifted, err := h.adminService.Unblock(c.Request.Context(), actorID, req.UserID)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	if !lifted {
		response.NotFoundError(c, "用户未被锁定")
		return
	}
	response.SuccessWithMessage(c, "已解除锁定", nil)
}

// AuditLog 审计日志
// GET /api/v1/admin/audit?user_id=&limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	var userID *int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ParamError(c, "无效的用户ID")
			return
		}
		userID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	items, err := h.adminService.AuditLog(c.Request.Context(), userID, limit)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, items)
}

// Housekeeping 手动触发清理，dry_run=true 时只统计
// POST /api/v1/admin/housekeeping
func (h *AdminHandler) Housekeeping(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))

	report, err := h.housekeeper.Run(c.Request.Context(), dryRun)
	if err != nil {
		_ = c.Error(err)
		writeServiceError(c, err)
		return
	}
	response.Success(c, report)
}

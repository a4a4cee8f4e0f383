package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/service"
	"sn-sync/backend/pkg/response"
)

// DeviceHandler 设备登记与采集/压缩 HTTP 处理器
type DeviceHandler struct {
	deviceSvc  service.DeviceService
	collectSvc service.CollectService
	compactSvc service.CompactService
}

// NewDeviceHandler 创建 DeviceHandler
func NewDeviceHandler(deviceSvc service.DeviceService, collectSvc service.CollectService, compactSvc service.CompactService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc, collectSvc: collectSvc, compactSvc: compactSvc}
}

// ListDevices 获取设备列表
// GET /api/v1/sn
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.deviceSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"list": devices})
}

// CreateDevice 登记设备
// POST /api/v1/sn
func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	var req dto.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "Invalid request body")
		return
	}

	device, err := h.deviceSvc.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}
	response.Created(c, device)
}

// UpdateDevice 更新设备
// PUT /api/v1/sn/:id
func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "Invalid request body")
		return
	}

	device, err := h.deviceSvc.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}
	response.OK(c, device)
}

// DeleteDevice 删除设备及其全部打卡记录
// DELETE /api/v1/sn/:id
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.deviceSvc.Delete(c.Request.Context(), id); err != nil {
		h.handleDeviceError(c, err)
		return
	}
	response.OK(c, nil)
}

// Collect 采集单台设备
// POST /api/v1/sn/:id/collect
// 领域失败（登录/网络/忙）返回 200 + success=false
func (h *DeviceHandler) Collect(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.collectSvc.Collect(c.Request.Context(), id)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}
	response.OK(c, res)
}

// Compact 压缩单台设备
// POST /api/v1/sn/:id/compact
func (h *DeviceHandler) Compact(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.compactSvc.Compact(c.Request.Context(), id)
	if err != nil {
		h.handleDeviceError(c, err)
		return
	}
	response.OK(c, res)
}

// CollectAll 批量采集
// POST /api/v1/sn/collect-all
func (h *DeviceHandler) CollectAll(c *gin.Context) {
	res, err := h.collectSvc.CollectAll(c.Request.Context())
	if err != nil && res == nil {
		response.InternalError(c)
		return
	}
	// 请求中途被取消时返回已处理部分
	response.OK(c, res)
}

// CompactAll 批量压缩
// POST /api/v1/sn/compact-all
func (h *DeviceHandler) CompactAll(c *gin.Context) {
	res, err := h.compactSvc.CompactAll(c.Request.Context())
	if err != nil && res == nil {
		response.InternalError(c)
		return
	}
	response.OK(c, res)
}

// handleDeviceError 统一处理设备模块业务错误
func (h *DeviceHandler) handleDeviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(c, 20001, err.Error())
	case errors.Is(err, service.ErrDeviceSNExists):
		response.Conflict(c, 20002, err.Error())
	case errors.Is(err, service.ErrNoFieldsToUpdate):
		response.BadRequest(c, 20003, err.Error())
	case errors.Is(err, service.ErrDeviceDateInvalid), errors.Is(err, service.ErrDeviceWindowInvalid):
		response.BadRequest(c, 20004, err.Error())
	default:
		response.InternalError(c)
	}
}

package handler

import (
	"github.com/gin-gonic/gin"

	"coachfit/backend/internal/dto"
	"coachfit/backend/internal/service"
	pkgerrors "coachfit/backend/pkg/errors"
	"coachfit/backend/pkg/response"
)

// AppointmentHandler 预约模块 HTTP 处理器
type AppointmentHandler struct {
	appointmentSvc service.AppointmentService
}

// NewAppointmentHandler 创建 AppointmentHandler
func NewAppointmentHandler(appointmentSvc service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointmentSvc: appointmentSvc}
}

// Create 创建预约（单次或周期重复）
// POST /api/v1/appointments
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	result, err := h.appointmentSvc.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.Created(c, result)
}

// Get 获取单条预约
// GET /api/v1/appointments/:id
func (h *AppointmentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 14001, "预约ID不能为空")
		return
	}

	appointment, err := h.appointmentSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.OK(c, appointment)
}

// List 查询会员的预约列表
// GET /api/v1/appointments
func (h *AppointmentHandler) List(c *gin.Context) {
	var req dto.ListAppointmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	list, total, err := h.appointmentSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Update 修改预约
// PUT /api/v1/appointments/:id
func (h *AppointmentHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 14001, "预约ID不能为空")
		return
	}

	var req dto.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 14001, "参数校验失败")
		return
	}

	result, err := h.appointmentSvc.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.OK(c, result)
}

// Delete 删除预约
// DELETE /api/v1/appointments/:id
func (h *AppointmentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 14001, "预约ID不能为空")
		return
	}

	result, err := h.appointmentSvc.Delete(c.Request.Context(), id)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.OK(c, result)
}

// Resync 重新同步外部日历
// POST /api/v1/appointments/:id/resync
func (h *AppointmentHandler) Resync(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 14001, "预约ID不能为空")
		return
	}

	result, err := h.appointmentSvc.Resync(c.Request.Context(), id)
	if err != nil {
		h.handleAppointmentError(c, err)
		return
	}

	response.OK(c, result)
}

// handleAppointmentError 按业务错误类别映射 HTTP 状态码
func (h *AppointmentHandler) handleAppointmentError(c *gin.Context, err error) {
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindValidation:
		response.BadRequest(c, 14001, err.Error())
	case pkgerrors.KindNotFound:
		response.NotFound(c, 14002, err.Error())
	case pkgerrors.KindConflict:
		response.Conflict(c, 14003, err.Error())
	default:
		response.InternalError(c)
	}
}

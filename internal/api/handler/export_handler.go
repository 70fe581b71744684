package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"coachfit/backend/internal/service"
	"coachfit/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportAppointments 导出会员预约清单为 Excel
// GET /api/v1/export/appointments?subject_id=...&from=...&to=...
func (h *ExportHandler) ExportAppointments(c *gin.Context) {
	subjectID := c.Query("subject_id")
	if subjectID == "" {
		response.BadRequest(c, 15001, "subject_id不能为空")
		return
	}

	var from, to *time.Time
	if s := c.Query("from"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			response.BadRequest(c, 15001, "from 日期格式不合法")
			return
		}
		from = &d
	}
	if s := c.Query("to"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			response.BadRequest(c, 15001, "to 日期格式不合法")
			return
		}
		to = &d
	}

	buf, filename, err := h.exportSvc.ExportAppointments(c.Request.Context(), subjectID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrExportNoAppointments) {
			response.NotFound(c, 15002, err.Error())
			return
		}
		response.InternalError(c)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(filename)))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

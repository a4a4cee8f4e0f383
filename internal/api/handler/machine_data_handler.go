package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/service"
	"sn-sync/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MachineDataHandler 打卡记录查询与导出 HTTP 处理器
type MachineDataHandler struct {
	machineDataSvc service.MachineDataService
	exportSvc      service.ExportService
}

// NewMachineDataHandler 创建 MachineDataHandler
func NewMachineDataHandler(machineDataSvc service.MachineDataService, exportSvc service.ExportService) *MachineDataHandler {
	return &MachineDataHandler{machineDataSvc: machineDataSvc, exportSvc: exportSvc}
}

// ListMachineData 分页查询打卡记录
// GET /api/v1/machine-data?sn=&employee_id=&page=&page_size=
func (h *MachineDataHandler) ListMachineData(c *gin.Context) {
	var query dto.MachineDataQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, 10001, "Invalid query parameters")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, total, err := h.machineDataSvc.List(c.Request.Context(), &query, caller)
	if err != nil {
		h.handleMachineDataError(c, err)
		return
	}

	page, pageSize := service.NormalizePage(query.Page, query.PageSize)
	response.OKPage(c, list, total, page, pageSize)
}

// ExportMachineData 导出打卡记录
// GET /api/v1/machine-data/export?sn=&employee_id=&from=&to=
func (h *MachineDataHandler) ExportMachineData(c *gin.Context) {
	var query dto.MachineDataExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, 10001, "Invalid query parameters")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportMachineData(c.Request.Context(), &query, caller)
	if err != nil {
		h.handleMachineDataError(c, err)
		return
	}

	// 设置下载响应头
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *MachineDataHandler) handleMachineDataError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmployeeIDMissing):
		response.Forbidden(c, 21001, err.Error())
	case errors.Is(err, service.ErrExportRangeInvalid):
		response.BadRequest(c, 21002, err.Error())
	case errors.Is(err, service.ErrExportNoRecords):
		response.NotFound(c, 21003, err.Error())
	default:
		response.InternalError(c)
	}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"sn-sync/backend/internal/dto"
	"sn-sync/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords    = errors.New("no machine data matches the filter")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
	ErrExportRangeInvalid = errors.New("invalid export range")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 打卡记录导出为单 Sheet 的 Excel (.xlsx)
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - 列：SN / Employee / Timestamp / WorkCode / Verification / State，按 SN、时间升序
type ExportService interface {
	ExportMachineData(ctx context.Context, query *dto.MachineDataExportQuery, caller Caller) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: loc, logger: logger}
}

var exportHeaders = []string{"SN", "Employee", "Timestamp", "WorkCode", "Verification", "State"}

const exportSheet = "MachineData"

// ═══════════════════════════════════════════════════════════
// ExportMachineData — 导出打卡记录为 Excel
// ═══════════════════════════════════════════════════════════
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportMachineData(ctx context.Context, query *dto.MachineDataExportQuery, caller Caller) (*bytes.Buffer, string, error) {
	filter := repository.PunchRecordFilter{SN: query.SN, EmployeeID: query.EmployeeID}
	if query.From != "" {
		from, err := parseDeviceDate(query.From, s.loc, false)
		if err != nil {
			return nil, "", ErrExportRangeInvalid
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := parseDeviceDate(query.To, s.loc, true)
		if err != nil {
			return nil, "", ErrExportRangeInvalid
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, "", ErrExportRangeInvalid
	}

	filter, err := scopeFilter(filter, caller)
	if err != nil {
		return nil, "", err
	}

	// 1. 查询记录
	records, err := s.repo.PunchRecord.ListAll(ctx, filter)
	if err != nil {
		s.logger.Error("查询打卡记录失败", zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(exportSheet)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 流式写入，避免大表占用过多内存；列宽须在写行之前设置
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		s.logger.Error("创建 Excel 流失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	_ = sw.SetColWidth(1, 2, 16)
	_ = sw.SetColWidth(3, 3, 22)
	_ = sw.SetColWidth(4, 6, 14)

	// 表头
	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, "", ErrExportGenerateFail
	}
	for i, r := range records {
		row := []interface{}{
			r.SN,
			r.EmployeeID,
			r.Timestamp.In(s.loc).Format("2006-01-02 15:04:05"),
			deref(r.WorkCode),
			deref(r.Verification),
			deref(r.State),
		}
		if err := sw.SetRow(cell(colName(0), i+2), row); err != nil {
			s.logger.Error("写入 Excel 行失败", zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
	}
	if err := sw.Flush(); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	// 3. 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	name := "all"
	if filter.SN != "" {
		name = filter.SN
	}
	filename := fmt.Sprintf("machine_data_%s_%s.xlsx", name, time.Now().In(s.loc).Format("20060102"))
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

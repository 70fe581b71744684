package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"coachfit/backend/internal/model"
	"coachfit/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoAppointments = errors.New("该会员在所选区间内无预约")
	ErrExportGenerateFail   = errors.New("生成 Excel 文件失败")
)

// 单次导出的行数上限，防止超大区间拖垮内存
const exportMaxRows = 1000

// ExportService 导出业务接口
//
// 设计说明：
//   - 将会员的预约清单导出为 Excel (.xlsx)，供教练线下核对
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportAppointments 导出会员预约清单为 Excel
	ExportAppointments(ctx context.Context, subjectID string, from, to *time.Time) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportAppointments — 导出会员预约清单为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 单 Sheet，按开始时间升序
//   - 列：日期 | 开始 | 结束 | 费用 | 出勤状态 | 外部同步 | 备注
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportAppointments(ctx context.Context, subjectID string, from, to *time.Time) (*bytes.Buffer, string, error) {
	// 1. 查询预约
	appointments, _, err := s.repo.Appointment.ListBySubject(ctx, subjectID, from, to, 0, exportMaxRows)
	if err != nil {
		s.logger.Error("查询预约失败", zap.String("subject_id", subjectID), zap.Error(err))
		return nil, "", err
	}
	if len(appointments) == 0 {
		return nil, "", ErrExportNoAppointments
	}

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "预约清单"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	// 列宽
	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "C", 8)
	f.SetColWidth(sheetName, "D", "D", 10)
	f.SetColWidth(sheetName, "E", "F", 10)
	f.SetColWidth(sheetName, "G", "G", 36)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", "会员预约清单")
	f.MergeCell(sheetName, "A1", "G1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	headers := []string{"日期", "开始", "结束", "费用", "出勤状态", "外部同步", "备注"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}

	// 数据行
	statusNames := map[string]string{
		model.StatusNotAttended: "未出勤",
		model.StatusAttended:    "已出勤",
	}
	row := 3
	for i := range appointments {
		a := &appointments[i]

		synced := "未同步"
		if a.ExternalEventID != nil {
			synced = "已同步"
		}

		f.SetCellValue(sheetName, cell("A", row), a.StartTime.Format("2006-01-02"))
		f.SetCellValue(sheetName, cell("B", row), a.StartTime.Format("15:04"))
		f.SetCellValue(sheetName, cell("C", row), a.EndTime.Format("15:04"))
		f.SetCellValue(sheetName, cell("D", row), a.Fee.StringFixed(2))
		f.SetCellValue(sheetName, cell("E", row), statusNames[a.Status])
		f.SetCellValue(sheetName, cell("F", row), synced)
		f.SetCellValue(sheetName, cell("G", row), a.Notes)
		row++
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("预约清单_%s.xlsx", time.Now().Format("20060102"))
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

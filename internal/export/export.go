package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crossposter/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Executions"

// Reporter пишет Excel отчеты по истории выполнений задачи.
type Reporter struct {
	dir    string
	logger zerolog.Logger
}

func NewReporter(dir string, logger zerolog.Logger) *Reporter {
	return &Reporter{
		dir:    dir,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// ExecutionsReport создает Excel файл с выполнениями задачи и возвращает путь к нему.
func (r *Reporter) ExecutionsReport(task *models.Task, executions []*models.TaskExecution) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	// Заголовок с именем задачи
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Задача: %s (#%d)", task.Name, task.ID))
	_ = f.MergeCell(sheetName, "A1", "I1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	writeHeaders(f)
	for i, exec := range executions {
		writeExecutionRow(f, i+3, exec)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 20)
	_ = f.SetColWidth(sheetName, "C", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 12)
	_ = f.SetColWidth(sheetName, "F", "F", 18)
	_ = f.SetColWidth(sheetName, "G", "G", 18)
	_ = f.SetColWidth(sheetName, "H", "I", 40)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("task_%d_executions_%s.xlsx", task.ID, time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(r.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	r.logger.Info().Str("file_path", filePath).Int("executions", len(executions)).Msg("Excel file created")
	return filePath, nil
}

func writeHeaders(f *excelize.File) {
	headers := []string{
		"ID", "Выполнено", "Источник", "Цель", "Статус",
		"ID элемента", "ID публикации", "Текст", "Ошибка",
	}

	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func writeExecutionRow(f *excelize.File, row int, exec *models.TaskExecution) {
	_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), exec.ID)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), exec.ExecutedAt.Format("02.01.2006 15:04:05"))
	_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), exec.SourceAccount)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), exec.TargetAccount)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), statusIcon(exec.Status)+" "+exec.Status)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), sourceItemID(exec))
	_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), exec.ResponseData.PrimaryID())
	_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), exec.TransformedContent)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), exec.Error)

	if exec.Status == models.ExecutionFailed {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		})
		if err == nil {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), style)
		}
	}
}

func statusIcon(status string) string {
	switch status {
	case models.ExecutionSuccess:
		return "✅"
	case models.ExecutionFailed:
		return "❌"
	case models.ExecutionPending:
		return "⏳"
	default:
		return "❓"
	}
}

func sourceItemID(exec *models.TaskExecution) string {
	if exec.ResponseData == nil {
		return ""
	}
	return exec.ResponseData.SourceItemID
}

package excel

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/contractor-ledger/internal/model"
)

const sheetName = "Unpaid jobs"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateUnpaidJobs writes a single-sheet workbook with a summary block and
// one row per unpaid job.
func (g *Generator) GenerateUnpaidJobs(profile model.Profile, jobs []model.Job, generatedAt time.Time) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheetName, cell, value)
	}

	total := decimal.Zero
	for _, job := range jobs {
		total = total.Add(job.Price)
	}

	set("A1", "Profile")
	set("B1", profile.FullName())
	set("A2", "Role")
	set("B2", string(profile.Type))
	set("A3", "Generated at")
	set("B3", generatedAt.Format("2006-01-02 15:04:05"))
	set("A4", "Unpaid jobs")
	set("B4", len(jobs))
	set("A5", "Total outstanding")
	set("B5", formatMoney(total))

	tableRow := 7
	headers := []string{"Job ID", "Contract ID", "Description", "Price"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, job := range jobs {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), job.ID)
		set(fmt.Sprintf("B%d", row), job.ContractID)
		set(fmt.Sprintf("C%d", row), job.Description)
		set(fmt.Sprintf("D%d", row), formatMoney(job.Price))
	}

	_ = file.SetColWidth(sheetName, "A", "B", 18)
	_ = file.SetColWidth(sheetName, "C", "C", 48)
	_ = file.SetColWidth(sheetName, "D", "D", 16)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

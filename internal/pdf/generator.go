package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/contractor-ledger/internal/model"
)

const coreFont = "Helvetica"

type Generator struct {
	fontName string
	font     []byte
}

// NewGenerator renders with the built-in Helvetica font, which covers
// Latin-1 text only.
func NewGenerator() *Generator {
	return &Generator{fontName: coreFont}
}

// NewGeneratorWithFont embeds a UTF-8 TrueType font into every receipt.
func NewGeneratorWithFont(name string, font []byte) (*Generator, error) {
	if len(font) == 0 {
		return nil, fmt.Errorf("font data is empty")
	}
	if strings.TrimSpace(name) == "" {
		name = "ReceiptSans"
	}
	return &Generator{fontName: name, font: font}, nil
}

type writer struct {
	pdf  *gofpdf.Fpdf
	font string
	text func(string) string
}

// GenerateReceipt renders proof of payment for a settled job.
func (g *Generator) GenerateReceipt(receipt model.JobReceipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(fmt.Sprintf("Payment receipt for job %d", receipt.Job.ID), true)

	w := &writer{pdf: pdf, font: g.fontName, text: func(s string) string { return s }}
	if len(g.font) > 0 {
		pdf.AddUTF8FontFromBytes(g.fontName, "", g.font)
		pdf.AddUTF8FontFromBytes(g.fontName, "B", g.font)
	} else {
		w.text = pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AddPage()

	w.setFont("B", 14)
	w.line(10, "Payment receipt", "C")

	w.setFont("", 11)
	w.line(6, fmt.Sprintf("Job #%d under contract #%d", receipt.Job.ID, receipt.Contract.ID), "C")
	w.line(6, fmt.Sprintf("Paid on %s", formatDate(receipt.Job.PaymentDate)), "C")
	pdf.Ln(4)

	w.partyBlock("Client", receipt.Client)
	pdf.Ln(2)
	w.partyBlock("Contractor", receipt.Contractor)
	pdf.Ln(4)

	headers := []string{"Description", "Contract terms", "Amount"}
	colWidths := []float64{80, 70, 30}
	w.tableRow(headers, colWidths, true)
	w.tableRow([]string{
		safeValue(receipt.Job.Description),
		safeValue(receipt.Contract.Terms),
		receipt.Job.Price.StringFixed(2),
	}, colWidths, false)

	pdf.Ln(2)
	w.setFont("B", 11)
	w.line(6, fmt.Sprintf("Total paid: %s", receipt.Job.Price.StringFixed(2)), "R")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *writer) setFont(style string, size float64) {
	w.pdf.SetFont(w.font, style, size)
}

func (w *writer) line(height float64, value, align string) {
	w.pdf.CellFormat(0, height, w.text(value), "", 1, align, false, 0, "")
}

func (w *writer) partyBlock(title string, profile model.Profile) {
	w.setFont("B", 11)
	w.line(6, title, "L")
	w.setFont("", 10)
	lines := []string{
		safeValue(profile.FullName()),
		fmt.Sprintf("Profession: %s", safeValue(profile.Profession)),
		fmt.Sprintf("Profile ID: %d", profile.ID),
	}
	for _, line := range lines {
		w.pdf.MultiCell(0, 5, w.text(line), "", "L", false)
	}
}

func (w *writer) tableRow(cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	w.setFont(style, 10)
	for i, col := range cols {
		align := "L"
		if i == len(cols)-1 {
			align = "R"
		}
		w.pdf.CellFormat(widths[i], 8, w.text(truncate(col, 45)), "1", 0, align, false, 0, "")
	}
	w.pdf.Ln(-1)
}

// truncate limits value to max runes.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02.01.2006 15:04 MST")
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nurpe/contractor-ledger/internal/model"
)

type ExcelGenerator interface {
	GenerateUnpaidJobs(profile model.Profile, jobs []model.Job, generatedAt time.Time) ([]byte, error)
}

type PDFGenerator interface {
	GenerateReceipt(receipt model.JobReceipt) ([]byte, error)
}

type DocumentResult struct {
	FileName    string
	ContentType string
	Content     []byte
}

// DocumentService renders ledger data into downloadable files.
type DocumentService struct {
	ledger *LedgerService
	excel  ExcelGenerator
	pdf    PDFGenerator
	now    func() time.Time
}

func NewDocumentService(ledger *LedgerService, excel ExcelGenerator, pdf PDFGenerator) *DocumentService {
	return &DocumentService{
		ledger: ledger,
		excel:  excel,
		pdf:    pdf,
		now:    time.Now,
	}
}

func (s *DocumentService) UnpaidJobsWorkbook(ctx context.Context, profile model.Profile) (*DocumentResult, error) {
	jobs, err := s.ledger.UnpaidJobsForProfile(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	content, err := s.excel.GenerateUnpaidJobs(profile, jobs, generatedAt)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{
		FileName:    fmt.Sprintf("unpaid-jobs-%d-%s.xlsx", profile.ID, generatedAt.Format("20060102")),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:     content,
	}, nil
}

func (s *DocumentService) PaymentReceipt(ctx context.Context, jobID int64, profile model.Profile) (*DocumentResult, error) {
	receipt, err := s.ledger.JobReceipt(ctx, jobID, profile)
	if err != nil {
		return nil, err
	}

	content, err := s.pdf.GenerateReceipt(*receipt)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{
		FileName:    buildReceiptName(*receipt),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func buildReceiptName(receipt model.JobReceipt) string {
	contractor := sanitizeFileName(receipt.Contractor.FullName())
	if contractor == "" {
		contractor = fmt.Sprintf("contractor-%d", receipt.Contractor.ID)
	}
	return fmt.Sprintf("receipt-job-%d-%s.pdf", receipt.Job.ID, contractor)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}

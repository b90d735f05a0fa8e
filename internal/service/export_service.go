package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	"github.com/tams-dev/tams-api/pkg/export"
	"github.com/tams-dev/tams-api/pkg/storage"
)

type reportDatasetRepository interface {
	ScheduleRows(ctx context.Context, params models.ReportJobParams) ([]repository.ScheduleRow, error)
	LeaveRows(ctx context.Context, params models.ReportJobParams) ([]repository.LeaveRow, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	datasets reportDatasetRepository
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(datasets reportDatasetRepository, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		datasets: datasets,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured
// result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	deptPart := sanitizeFilename(job.Params.Department)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), deptPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeProctoringSchedule:
		return s.buildScheduleDataset(ctx, job.Params)
	case models.ReportTypeLeaveSummary:
		return s.buildLeaveDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildScheduleDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.datasets.ScheduleRows(ctx, params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Course Code": row.CourseCode,
			"Course Name": row.CourseName,
			"Exam Date":   row.ExamDate.Format("2006-01-02 15:04"),
			"Duration":    fmt.Sprintf("%d min", row.DurationMinutes),
			"Proctor":     row.TAName,
			"Email":       row.TAEmail,
			"Department":  row.Department,
			"Status":      string(row.Status),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Course Code", "Course Name", "Exam Date", "Duration", "Proctor", "Email", "Department", "Status"},
		Rows:    dataRows,
	}
	title := "Proctoring Schedule"
	if params.Department != "" {
		title = fmt.Sprintf("Proctoring Schedule %s", params.Department)
	}
	return dataset, title, nil
}

func (s *ExportService) buildLeaveDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows, err := s.datasets.LeaveRows(ctx, params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		reviewed := ""
		if row.ReviewedAt != nil {
			reviewed = row.ReviewedAt.Format("2006-01-02 15:04")
		}
		dataRows = append(dataRows, map[string]string{
			"TA":         row.TAName,
			"Department": row.Department,
			"From":       row.StartDate.Format("2006-01-02"),
			"To":         row.EndDate.Format("2006-01-02"),
			"Status":     string(row.Status),
			"Reason":     row.Reason,
			"Reviewed":   reviewed,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"TA", "Department", "From", "To", "Status", "Reason", "Reviewed"},
		Rows:    dataRows,
	}
	title := "Leave Summary"
	if params.Department != "" {
		title = fmt.Sprintf("Leave Summary %s", params.Department)
	}
	return dataset, title, nil
}

package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	"github.com/aite-labs/aite-api/pkg/export"
	"github.com/aite-labs/aite-api/pkg/storage"
)

type attendanceExportSource interface {
	ListForExport(ctx context.Context, registrationID *string) ([]models.AttendanceExportRow, error)
}

type registrationExportSource interface {
	ListForExport(ctx context.Context) ([]models.RegistrationExportRow, error)
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
	attendance    attendanceExportSource
	registrations registrationExportSource
	storage       fileStorage
	csv           csvRenderer
	pdf           pdfRenderer
	signer        *storage.SignedURLSigner
	logger        *zap.Logger
	metrics       *MetricsService
	cfg           ExportConfig
}

// NewExportService constructs an ExportService. metrics may be nil.
func NewExportService(attendance attendanceExportSource, registrations registrationExportSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, metrics *MetricsService, csv csvRenderer, pdf pdfRenderer) *ExportService {
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
		attendance:    attendance,
		registrations: registrations,
		storage:       store,
		csv:           csv,
		pdf:           pdf,
		signer:        signer,
		logger:        logger,
		metrics:       metrics,
		cfg:           cfg,
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
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
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

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	if job.Params.RegistrationID != nil && *job.Params.RegistrationID != "" {
		scope = sanitizeFilename(*job.Params.RegistrationID)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
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
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	case models.ReportTypeRegistrations:
		return s.buildRegistrationDataset(ctx)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	start := time.Now()
	rows, err := s.attendance.ListForExport(ctx, params.RegistrationID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("attendance_export", time.Since(start))
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Registration ID": row.RegistrationID,
			"Student":         row.StudentName,
			"Kind":            string(row.Kind),
			"Subject":         row.Subject,
			"Session":         fmt.Sprintf("%d", row.SessionNumber),
			"Recorded At":     row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Registration ID", "Student", "Kind", "Subject", "Session", "Recorded At"},
		Rows:    dataRows,
	}
	title := "Attendance Report"
	if params.RegistrationID != nil && *params.RegistrationID != "" {
		title = fmt.Sprintf("Attendance Report %s", *params.RegistrationID)
	}
	return dataset, title, nil
}

func (s *ExportService) buildRegistrationDataset(ctx context.Context) (export.Dataset, string, error) {
	start := time.Now()
	rows, err := s.registrations.ListForExport(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("registration_export", time.Since(start))
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Registration ID": row.ID,
			"Student":         row.StudentName,
			"Status":          string(row.Status),
			"Payment":         string(row.Payment),
			"Active":          fmt.Sprintf("%t", row.Active),
			"Subjects":        fmt.Sprintf("%d", row.SubjectCount),
			"Sessions Done":   fmt.Sprintf("%d", row.SessionsCompleted),
			"Sessions Total":  fmt.Sprintf("%d", row.SessionsTotal),
			"Registered At":   row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Registration ID", "Student", "Status", "Payment", "Active", "Subjects", "Sessions Done", "Sessions Total", "Registered At"},
		Rows:    dataRows,
	}
	return dataset, "Registration Report", nil
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	"github.com/aite-labs/aite-api/pkg/export"
	"github.com/aite-labs/aite-api/pkg/storage"
)

type attendanceExportStub struct{}

func (attendanceExportStub) ListForExport(ctx context.Context, registrationID *string) ([]models.AttendanceExportRow, error) {
	return []models.AttendanceExportRow{
		{RegistrationID: "reg-1", StudentName: "Ali", Kind: models.AttendanceKindCheckIn, Subject: "Math", SessionNumber: 1, CreatedAt: time.Now()},
		{RegistrationID: "reg-1", StudentName: "Ali", Kind: models.AttendanceKindCheckIn, Subject: "Math", SessionNumber: 2, CreatedAt: time.Now()},
	}, nil
}

type registrationExportStub struct{}

func (registrationExportStub) ListForExport(ctx context.Context) ([]models.RegistrationExportRow, error) {
	return []models.RegistrationExportRow{
		{ID: "reg-1", StudentName: "Ali", Status: models.RegistrationStatusApproved, Payment: models.PaymentStatusPaid, Active: true, SubjectCount: 1, SessionsCompleted: 2, SessionsTotal: 10, CreatedAt: time.Now()},
	}, nil
}

func newExportServiceForTest(t *testing.T, metrics *MetricsService) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(attendanceExportStub{}, registrationExportStub{}, store, signer, cfg, zap.NewNop(), metrics, export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateAttendanceCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t, nil)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/reports/download/")

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateRegistrationsPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t, nil)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeRegistrations,
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceObservesQueryDuration(t *testing.T) {
	metrics := NewMetricsService()
	svc, _ := newExportServiceForTest(t, metrics)
	job := &models.ReportJob{
		ID:        "job-4",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	_, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `db_query_duration_seconds_count{query="attendance_export"} 1`)
}

func TestExportServiceRejectsUnknownType(t *testing.T) {
	svc, _ := newExportServiceForTest(t, nil)
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportType("grades"),
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}

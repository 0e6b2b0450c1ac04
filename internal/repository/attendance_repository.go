package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aite-labs/aite-api/internal/models"
)

// AttendanceRepository persists append-only attendance log entries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Append inserts a new log entry. Entries are never updated afterwards.
func (r *AttendanceRepository) Append(ctx context.Context, entry *models.AttendanceLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_logs (id, registration_id, kind, subject, session_number, created_at)
        VALUES (:id, :registration_id, :kind, :subject, :session_number, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append attendance log: %w", err)
	}
	return nil
}

// ListByRegistration returns log entries for a registration, newest first.
func (r *AttendanceRepository) ListByRegistration(ctx context.Context, registrationID string, filter models.AttendanceFilter) ([]models.AttendanceLog, int, error) {
	base := "FROM attendance_logs WHERE registration_id = $1"
	args := []interface{}{registrationID}

	if filter.Kind != nil {
		base += fmt.Sprintf(" AND kind = $%d", len(args)+1)
		args = append(args, *filter.Kind)
	}
	if filter.Subject != "" {
		base += fmt.Sprintf(" AND LOWER(subject) = $%d", len(args)+1)
		args = append(args, strings.ToLower(filter.Subject))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, registration_id, kind, subject, session_number, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var logs []models.AttendanceLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance logs: %w", err)
	}
	return logs, total, nil
}

// ListForExport returns log entries joined with the student name, scoped to a
// single registration when registrationID is non-nil. Oldest entries first so
// exports read chronologically.
func (r *AttendanceRepository) ListForExport(ctx context.Context, registrationID *string) ([]models.AttendanceExportRow, error) {
	query := `SELECT l.registration_id, reg.student_name, l.kind, l.subject, l.session_number, l.created_at
        FROM attendance_logs l
        JOIN registrations reg ON reg.id = l.registration_id`
	args := []interface{}{}
	if registrationID != nil && *registrationID != "" {
		query += " WHERE l.registration_id = $1"
		args = append(args, *registrationID)
	}
	query += " ORDER BY l.created_at ASC"

	var rows []models.AttendanceExportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance export rows: %w", err)
	}
	return rows, nil
}

// Delete removes a single log entry by its identifier.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance log: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

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

// RegistrationRepository manages persistence for registration records and
// their subjects.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a registration together with its subjects in one transaction.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration, subjects []models.Subject) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const regQuery = `INSERT INTO registrations (id, student_name, level, track, status, payment_status, active, scan_code, created_at, updated_at)
        VALUES (:id, :student_name, :level, :track, :status, :payment_status, :active, :scan_code, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, regQuery, reg); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}

	const subjectQuery = `INSERT INTO registration_subjects (id, registration_id, name, total_sessions, completed_sessions, created_at)
        VALUES (:id, :registration_id, :name, :total_sessions, :completed_sessions, :created_at)`
	for i := range subjects {
		if subjects[i].ID == "" {
			subjects[i].ID = uuid.NewString()
		}
		subjects[i].RegistrationID = reg.ID
		if subjects[i].CreatedAt.IsZero() {
			subjects[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, subjectQuery, subjects[i]); err != nil {
			return fmt.Errorf("create registration subject %s: %w", subjects[i].Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create registration: %w", err)
	}
	return nil
}

// List returns registrations matching the provided filters.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	base := "FROM registrations r"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(r.student_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Payment != nil {
		conditions = append(conditions, fmt.Sprintf("r.payment_status = $%d", len(args)+1))
		args = append(args, *filter.Payment)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("r.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"student_name": "r.student_name",
		"status":       "r.status",
		"created_at":   "r.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "r.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.student_name, r.level, r.track, r.status, r.payment_status, r.active, r.scan_code, r.created_at, r.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// FindByID fetches a registration with its subjects.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	const query = `SELECT id, student_name, level, track, status, payment_status, active, scan_code, created_at, updated_at
        FROM registrations WHERE id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail.Registration, query, id); err != nil {
		return nil, err
	}
	if err := r.loadSubjects(ctx, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByScanCode fetches a registration by its generated code.
func (r *RegistrationRepository) FindByScanCode(ctx context.Context, code string) (*models.RegistrationDetail, error) {
	const query = `SELECT id, student_name, level, track, status, payment_status, active, scan_code, created_at, updated_at
        FROM registrations WHERE scan_code = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail.Registration, query, code); err != nil {
		return nil, err
	}
	if err := r.loadSubjects(ctx, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (r *RegistrationRepository) loadSubjects(ctx context.Context, detail *models.RegistrationDetail) error {
	const query = `SELECT id, registration_id, name, total_sessions, completed_sessions, created_at
        FROM registration_subjects WHERE registration_id = $1 ORDER BY created_at ASC, name ASC`
	if err := r.db.SelectContext(ctx, &detail.Subjects, query, detail.ID); err != nil {
		return fmt.Errorf("load subjects: %w", err)
	}
	return nil
}

// SetApproved transitions the record to approved and stores the generated code.
func (r *RegistrationRepository) SetApproved(ctx context.Context, id, code string) error {
	const query = `UPDATE registrations SET status = $2, scan_code = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.RegistrationStatusApproved, code, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve registration: %w", err)
	}
	return nil
}

// SetRejected transitions the record to rejected and clears any scan code.
func (r *RegistrationRepository) SetRejected(ctx context.Context, id string) error {
	const query = `UPDATE registrations SET status = $2, scan_code = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.RegistrationStatusRejected, time.Now().UTC()); err != nil {
		return fmt.Errorf("reject registration: %w", err)
	}
	return nil
}

// SetPayment updates the payment status.
func (r *RegistrationRepository) SetPayment(ctx context.Context, id string, status models.PaymentStatus) error {
	const query = `UPDATE registrations SET payment_status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// SetActive flips the active flag.
func (r *RegistrationRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE registrations SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("update active flag: %w", err)
	}
	return nil
}

// Delete removes the registration. Subjects and attendance logs are removed
// by ON DELETE CASCADE.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdvanceSubjectSession increments a subject's completed counter using a
// guarded atomic update so that concurrent check-ins never push the counter
// past the quota. Returns the session number just recorded, or sql.ErrNoRows
// when the subject is already complete.
func (r *RegistrationRepository) AdvanceSubjectSession(ctx context.Context, registrationID, subjectName string) (int, error) {
	const query = `UPDATE registration_subjects
        SET completed_sessions = completed_sessions + 1
        WHERE registration_id = $1 AND name = $2 AND completed_sessions < total_sessions
        RETURNING completed_sessions`
	var recorded int
	if err := r.db.GetContext(ctx, &recorded, query, registrationID, subjectName); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("advance session: %w", err)
	}
	return recorded, nil
}

// UndoSubjectSession decrements a subject's completed counter, floored at 0
// by the WHERE guard. Returns the session number that was undone, or
// sql.ErrNoRows when the counter is already at 0.
func (r *RegistrationRepository) UndoSubjectSession(ctx context.Context, registrationID, subjectName string) (int, error) {
	const query = `UPDATE registration_subjects
        SET completed_sessions = completed_sessions - 1
        WHERE registration_id = $1 AND name = $2 AND completed_sessions > 0
        RETURNING completed_sessions + 1`
	var undone int
	if err := r.db.GetContext(ctx, &undone, query, registrationID, subjectName); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("undo session: %w", err)
	}
	return undone, nil
}

// ListForExport flattens registrations with aggregated session progress for
// report exports, oldest first.
func (r *RegistrationRepository) ListForExport(ctx context.Context) ([]models.RegistrationExportRow, error) {
	const query = `SELECT r.id, r.student_name, r.status, r.payment_status, r.active,
        COUNT(s.id) AS subject_count,
        COALESCE(SUM(s.completed_sessions), 0) AS sessions_completed,
        COALESCE(SUM(s.total_sessions), 0) AS sessions_total,
        r.created_at
        FROM registrations r
        LEFT JOIN registration_subjects s ON s.registration_id = r.id
        GROUP BY r.id, r.student_name, r.status, r.payment_status, r.active, r.created_at
        ORDER BY r.created_at ASC`
	var rows []models.RegistrationExportRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list registration export rows: %w", err)
	}
	return rows, nil
}

// SubjectExists reports whether a subject row exists for the registration.
func (r *RegistrationRepository) SubjectExists(ctx context.Context, registrationID, subjectName string) (bool, error) {
	const query = `SELECT 1 FROM registration_subjects WHERE registration_id = $1 AND name = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, registrationID, subjectName); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject: %w", err)
	}
	return true, nil
}

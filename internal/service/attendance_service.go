package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
)

type checkInRegistrationStore interface {
	FindByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	FindByScanCode(ctx context.Context, code string) (*models.RegistrationDetail, error)
	AdvanceSubjectSession(ctx context.Context, registrationID, subjectName string) (int, error)
	UndoSubjectSession(ctx context.Context, registrationID, subjectName string) (int, error)
	SubjectExists(ctx context.Context, registrationID, subjectName string) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type attendanceLogStore interface {
	Append(ctx context.Context, entry *models.AttendanceLog) error
	ListByRegistration(ctx context.Context, registrationID string, filter models.AttendanceFilter) ([]models.AttendanceLog, int, error)
	Delete(ctx context.Context, id string) error
}

// AttendanceService handles QR check-ins and session bookkeeping.
type AttendanceService struct {
	registrations checkInRegistrationStore
	logs          attendanceLogStore
	logger        *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(registrations checkInRegistrationStore, logs attendanceLogStore, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{registrations: registrations, logs: logs, logger: logger}
}

// CheckIn resolves a scanned payload, advances the first subject with
// remaining sessions and appends an attendance log entry. Once every subject
// is complete the registration is deactivated and further scans report the
// expired condition instead of logging attendance.
func (s *AttendanceService) CheckIn(ctx context.Context, rawPayload string) (*models.CheckInResult, error) {
	payload, err := models.ParseScanCode(rawPayload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable scan payload")
	}

	detail, err := s.resolve(ctx, payload)
	if err != nil {
		return nil, err
	}

	switch detail.Status {
	case models.RegistrationStatusApproved:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotApproved, "registration is not approved for check-in")
	}

	if !detail.Active {
		return nil, appErrors.Clone(appErrors.ErrExpired, "registration is no longer active")
	}

	// The guarded update may race with a concurrent scan, so walk the
	// subjects until one accepts the increment.
	for _, subject := range detail.Subjects {
		if subject.Complete() {
			continue
		}
		recorded, err := s.registrations.AdvanceSubjectSession(ctx, detail.ID, subject.Name)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance session")
		}

		entry := &models.AttendanceLog{
			RegistrationID: detail.ID,
			Kind:           models.AttendanceKindCheckIn,
			Subject:        subject.Name,
			SessionNumber:  recorded,
		}
		if err := s.logs.Append(ctx, entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		}

		completed := s.quotaExhausted(detail, subject.Name, recorded)
		if completed {
			if err := s.registrations.SetActive(ctx, detail.ID, false); err != nil {
				s.logger.Warn("failed to deactivate completed registration", zap.String("registration_id", detail.ID), zap.Error(err))
			}
		}

		return &models.CheckInResult{
			RegistrationID: detail.ID,
			StudentName:    detail.StudentName,
			Subject:        subject.Name,
			SessionNumber:  recorded,
			SessionsLeft:   subject.TotalSessions - recorded,
			Completed:      completed,
		}, nil
	}

	// Every subject was already at quota: deactivate and report expiry.
	if err := s.registrations.SetActive(ctx, detail.ID, false); err != nil {
		s.logger.Warn("failed to deactivate expired registration", zap.String("registration_id", detail.ID), zap.Error(err))
	}
	return nil, appErrors.Clone(appErrors.ErrExpired, "all sessions are already completed")
}

// UndoSession reverts one completed session for a subject and logs the
// reversal. A registration deactivated by quota exhaustion becomes active
// again once a session is freed.
func (s *AttendanceService) UndoSession(ctx context.Context, registrationID, subjectName string) (*models.AttendanceLog, error) {
	detail, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}

	exists, err := s.registrations.SubjectExists(ctx, registrationID, subjectName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject is not registered")
	}

	undone, err := s.registrations.UndoSubjectSession(ctx, registrationID, subjectName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoSessionsToUndo, "no completed sessions to undo")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to undo session")
	}

	entry := &models.AttendanceLog{
		RegistrationID: registrationID,
		Kind:           models.AttendanceKindSessionUndone,
		Subject:        subjectName,
		SessionNumber:  undone,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to log undo")
	}

	if !detail.Active && detail.Status == models.RegistrationStatusApproved {
		if err := s.registrations.SetActive(ctx, registrationID, true); err != nil {
			s.logger.Warn("failed to reactivate registration", zap.String("registration_id", registrationID), zap.Error(err))
		}
	}

	return entry, nil
}

// Logs lists attendance entries for a registration.
func (s *AttendanceService) Logs(ctx context.Context, registrationID string, filter models.AttendanceFilter) ([]models.AttendanceLog, *models.Pagination, error) {
	if _, err := s.registrations.FindByID(ctx, registrationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	logs, total, err := s.logs.ListByRegistration(ctx, registrationID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// DeleteLog removes a single attendance entry.
func (s *AttendanceService) DeleteLog(ctx context.Context, logID string) error {
	if err := s.logs.Delete(ctx, logID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance log not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance log")
	}
	return nil
}

func (s *AttendanceService) resolve(ctx context.Context, payload models.ScanCode) (*models.RegistrationDetail, error) {
	var detail *models.RegistrationDetail
	var err error
	if payload.RegistrationID != "" {
		detail, err = s.registrations.FindByID(ctx, payload.RegistrationID)
	} else {
		detail, err = s.registrations.FindByScanCode(ctx, payload.Code)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidCode, "no registration matches the scanned code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve scan code")
	}
	return detail, nil
}

// quotaExhausted reports whether the registration has no sessions left after
// the subject just advanced to the given count.
func (s *AttendanceService) quotaExhausted(detail *models.RegistrationDetail, advancedSubject string, recorded int) bool {
	for _, sub := range detail.Subjects {
		current := sub.CompletedSessions
		if sub.Name == advancedSubject {
			current = recorded
		}
		if current < sub.TotalSessions {
			return false
		}
	}
	return len(detail.Subjects) > 0
}

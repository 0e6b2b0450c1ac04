package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
)

type registrationRepository interface {
	Create(ctx context.Context, reg *models.Registration, subjects []models.Subject) error
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	FindByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	SetApproved(ctx context.Context, id, code string) error
	SetRejected(ctx context.Context, id string) error
	SetPayment(ctx context.Context, id string, status models.PaymentStatus) error
	Delete(ctx context.Context, id string) error
}

// SubjectRequest describes one subject in a submission.
type SubjectRequest struct {
	Name          string `json:"name" validate:"required"`
	TotalSessions int    `json:"total_sessions" validate:"required,gt=0"`
}

// SubmitRegistrationRequest holds the public submission payload.
type SubmitRegistrationRequest struct {
	StudentName string           `json:"student_name" validate:"required"`
	Level       *string          `json:"level,omitempty"`
	Track       *string          `json:"track,omitempty"`
	Subjects    []SubjectRequest `json:"subjects" validate:"required,min=1,dive"`
}

// SubmitRegistrationResponse returns the created record and its QR image.
type SubmitRegistrationResponse struct {
	Registration models.RegistrationDetail `json:"registration"`
	QRCodeURL    string                    `json:"qr_code_url"`
}

// ApproveResponse returns the approved state and the QR image for the code.
type ApproveResponse struct {
	Registration models.RegistrationDetail `json:"registration"`
	QRCodeURL    string                    `json:"qr_code_url"`
}

// RegistrationService drives the pending -> approved/rejected workflow.
type RegistrationService struct {
	repo       registrationRepository
	validator  *validator.Validate
	logger     *zap.Logger
	codePrefix string
}

// NewRegistrationService constructs the registration service.
func NewRegistrationService(repo registrationRepository, validate *validator.Validate, logger *zap.Logger, codePrefix string) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codePrefix == "" {
		codePrefix = "AITE"
	}
	return &RegistrationService{repo: repo, validator: validate, logger: logger, codePrefix: codePrefix}
}

// Submit creates a new pending, unpaid registration and returns a QR image
// whose payload embeds the record identifier.
func (s *RegistrationService) Submit(ctx context.Context, req SubmitRegistrationRequest) (*SubmitRegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	seen := make(map[string]struct{}, len(req.Subjects))
	subjects := make([]models.Subject, 0, len(req.Subjects))
	for _, sub := range req.Subjects {
		name := strings.TrimSpace(sub.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject name must not be blank")
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate subject %q", name))
		}
		seen[strings.ToLower(name)] = struct{}{}
		subjects = append(subjects, models.Subject{Name: name, TotalSessions: sub.TotalSessions})
	}

	reg := &models.Registration{
		StudentName: strings.TrimSpace(req.StudentName),
		Level:       req.Level,
		Track:       req.Track,
		Status:      models.RegistrationStatusPending,
		Payment:     models.PaymentStatusUnpaid,
		Active:      true,
	}
	if err := s.repo.Create(ctx, reg, subjects); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	qrURL, err := s.renderQR(models.LegacyPayload(s.codePrefix, reg.ID))
	if err != nil {
		s.logger.Warn("qr render failed", zap.String("registration_id", reg.ID), zap.Error(err))
	}

	return &SubmitRegistrationResponse{
		Registration: models.RegistrationDetail{Registration: *reg, Subjects: subjects},
		QRCodeURL:    qrURL,
	}, nil
}

// List returns registrations and pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error) {
	regs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return regs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a registration with its subjects.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return detail, nil
}

// Approve transitions a pending registration to approved and generates its
// scan code. Approving an already-approved registration is a no-op that
// returns the current state with the existing code. Rejected registrations
// stay rejected.
func (s *RegistrationService) Approve(ctx context.Context, id string) (*ApproveResponse, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch detail.Status {
	case models.RegistrationStatusRejected:
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration was rejected")
	case models.RegistrationStatusApproved:
		qrURL := ""
		if detail.ScanCode != nil {
			if qrURL, err = s.renderQR(*detail.ScanCode); err != nil {
				s.logger.Warn("qr render failed", zap.String("registration_id", id), zap.Error(err))
			}
		}
		return &ApproveResponse{Registration: *detail, QRCodeURL: qrURL}, nil
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate scan code")
	}
	if err := s.repo.SetApproved(ctx, id, code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve registration")
	}

	detail.Status = models.RegistrationStatusApproved
	detail.ScanCode = &code

	qrURL, err := s.renderQR(code)
	if err != nil {
		s.logger.Warn("qr render failed", zap.String("registration_id", id), zap.Error(err))
	}
	return &ApproveResponse{Registration: *detail, QRCodeURL: qrURL}, nil
}

// Reject moves a registration to the terminal rejected state and clears its
// scan code.
func (s *RegistrationService) Reject(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status == models.RegistrationStatusRejected {
		return detail, nil
	}
	if err := s.repo.SetRejected(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject registration")
	}
	detail.Status = models.RegistrationStatusRejected
	detail.ScanCode = nil
	return detail, nil
}

// ConfirmPayment marks an approved registration as paid. Payment is a
// separate call from approval; pending and rejected records cannot be paid.
func (s *RegistrationService) ConfirmPayment(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.RegistrationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment requires an approved registration")
	}
	if detail.Payment == models.PaymentStatusPaid {
		return detail, nil
	}
	if err := s.repo.SetPayment(ctx, id, models.PaymentStatusPaid); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}
	detail.Payment = models.PaymentStatusPaid
	return detail, nil
}

// Delete removes the registration and everything owned by it.
func (s *RegistrationService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete registration")
	}
	return nil
}

// generateCode builds a human-readable code with a random component and a
// timestamp suffix, e.g. AITE-X7K2M9QZ-48123.
func (s *RegistrationService) generateCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	random := strings.ToUpper(strings.TrimRight(base64.RawURLEncoding.EncodeToString(buf), "="))
	random = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_':
			return 'X'
		}
		return r
	}, random)
	suffix := time.Now().Unix() % 100000
	return fmt.Sprintf("%s-%s-%05d", s.codePrefix, random, suffix), nil
}

// renderQR encodes the payload as a PNG data URL.
func (s *RegistrationService) renderQR(payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

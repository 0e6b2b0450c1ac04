package models

import (
	"fmt"
	"strings"
	"time"
)

// RegistrationStatus tracks a registration through the approval workflow.
type RegistrationStatus string

const (
	RegistrationStatusPending  RegistrationStatus = "pending"
	RegistrationStatusApproved RegistrationStatus = "approved"
	RegistrationStatusRejected RegistrationStatus = "rejected"
)

// PaymentStatus tracks whether an approved registration has been paid for.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// Registration is the primary record moving through the
// pending -> approved/rejected workflow. The scan code is only present while
// the registration is approved.
type Registration struct {
	ID          string             `db:"id" json:"id"`
	StudentName string             `db:"student_name" json:"student_name"`
	Level       *string            `db:"level" json:"level,omitempty"`
	Track       *string            `db:"track" json:"track,omitempty"`
	Status      RegistrationStatus `db:"status" json:"status"`
	Payment     PaymentStatus      `db:"payment_status" json:"payment_status"`
	Active      bool               `db:"active" json:"active"`
	ScanCode    *string            `db:"scan_code" json:"scan_code,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// Subject is one enrolled subject with its session quota. CompletedSessions
// stays within [0, TotalSessions].
type Subject struct {
	ID                string    `db:"id" json:"id"`
	RegistrationID    string    `db:"registration_id" json:"registration_id"`
	Name              string    `db:"name" json:"name"`
	TotalSessions     int       `db:"total_sessions" json:"total_sessions"`
	CompletedSessions int       `db:"completed_sessions" json:"completed_sessions"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Complete reports whether the subject's session quota is exhausted.
func (s Subject) Complete() bool {
	return s.CompletedSessions >= s.TotalSessions
}

// RegistrationDetail bundles a registration with its subjects.
type RegistrationDetail struct {
	Registration
	Subjects []Subject `json:"subjects"`
}

// AllSessionsComplete reports whether every subject reached its quota.
func (d RegistrationDetail) AllSessionsComplete() bool {
	for _, sub := range d.Subjects {
		if !sub.Complete() {
			return false
		}
	}
	return len(d.Subjects) > 0
}

// NextIncompleteSubject returns the first subject with remaining sessions.
func (d RegistrationDetail) NextIncompleteSubject() *Subject {
	for i := range d.Subjects {
		if !d.Subjects[i].Complete() {
			return &d.Subjects[i]
		}
	}
	return nil
}

// RegistrationFilter encapsulates allowed search parameters for listings.
type RegistrationFilter struct {
	Search    string
	Status    *RegistrationStatus
	Payment   *PaymentStatus
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RegistrationExportRow flattens a registration with aggregated session
// progress for report exports.
type RegistrationExportRow struct {
	ID                string             `db:"id"`
	StudentName       string             `db:"student_name"`
	Status            RegistrationStatus `db:"status"`
	Payment           PaymentStatus      `db:"payment_status"`
	Active            bool               `db:"active"`
	SubjectCount      int                `db:"subject_count"`
	SessionsCompleted int                `db:"sessions_completed"`
	SessionsTotal     int                `db:"sessions_total"`
	CreatedAt         time.Time          `db:"created_at"`
}

// ScanCode is the decoded payload of a scanned QR image. Exactly one of the
// two fields is set: Code for generated human-readable codes, RegistrationID
// for legacy payloads that embed the raw identifier.
type ScanCode struct {
	Code           string
	RegistrationID string
}

// legacy payload shape: "<PREFIX>-REGID:<id>"
const regIDMarker = "-REGID:"

// ParseScanCode interprets a raw scanned payload. Legacy identifiers tagged
// with the prefix marker resolve to the registration ID; anything else is
// treated as a generated code.
func ParseScanCode(raw string) (ScanCode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ScanCode{}, fmt.Errorf("empty scan payload")
	}
	if idx := strings.Index(raw, regIDMarker); idx >= 0 {
		id := raw[idx+len(regIDMarker):]
		if id == "" {
			return ScanCode{}, fmt.Errorf("scan payload %q carries no registration id", raw)
		}
		return ScanCode{RegistrationID: id}, nil
	}
	return ScanCode{Code: raw}, nil
}

// LegacyPayload renders the prefix-tagged form for a registration identifier.
func LegacyPayload(prefix, registrationID string) string {
	return prefix + regIDMarker + registrationID
}

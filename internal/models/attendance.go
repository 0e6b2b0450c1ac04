package models

import "time"

// AttendanceKind labels an attendance log entry.
type AttendanceKind string

const (
	AttendanceKindCheckIn       AttendanceKind = "check-in"
	AttendanceKindSessionUndone AttendanceKind = "session-undone"
)

// AttendanceLog is an append-only record of a check-in or a session reversal.
// Entries are never mutated; administrators may delete them individually and
// they are removed together with their parent registration.
type AttendanceLog struct {
	ID             string         `db:"id" json:"id"`
	RegistrationID string         `db:"registration_id" json:"registration_id"`
	Kind           AttendanceKind `db:"kind" json:"kind"`
	Subject        string         `db:"subject" json:"subject"`
	SessionNumber  int            `db:"session_number" json:"session_number"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// AttendanceFilter scopes attendance log listings.
type AttendanceFilter struct {
	Kind     *AttendanceKind
	Subject  string
	Page     int
	PageSize int
}

// AttendanceExportRow is a denormalised log entry used by report exports.
type AttendanceExportRow struct {
	RegistrationID string         `db:"registration_id"`
	StudentName    string         `db:"student_name"`
	Kind           AttendanceKind `db:"kind"`
	Subject        string         `db:"subject"`
	SessionNumber  int            `db:"session_number"`
	CreatedAt      time.Time      `db:"created_at"`
}

// CheckInResult reports the outcome of a successful check-in.
type CheckInResult struct {
	RegistrationID string `json:"registration_id"`
	StudentName    string `json:"student_name"`
	Subject        string `json:"subject"`
	SessionNumber  int    `json:"session_number"`
	SessionsLeft   int    `json:"sessions_left"`
	Completed      bool   `json:"completed"`
}

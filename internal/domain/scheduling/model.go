package scheduling

import "time"

// Appointment maps to the appointments table. Date is YYYY-MM-DD and Time is
// HH:MM.
type Appointment struct {
	ID              int64     `db:"id" json:"id"`
	PatientID       int64     `db:"patient_id" json:"patient_id"`
	DoctorID        int64     `db:"doctor_id" json:"doctor_id"`
	Date            string    `db:"appointment_date" json:"appointment_date"`
	Time            string    `db:"appointment_time" json:"appointment_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Status          Status    `db:"status" json:"status"`
	Reason          string    `db:"reason" json:"reason"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// AppointmentView is an appointment with its parties' display names.
type AppointmentView struct {
	*Appointment
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
}

// CreateRequest is the booking payload. PatientID is honoured for admins only.
type CreateRequest struct {
	PatientID       *int64  `json:"patient_id"`
	DoctorID        int64   `json:"doctor_id"`
	Date            string  `json:"appointment_date"`
	Time            string  `json:"appointment_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Reason          string  `json:"reason"`
	Notes           *string `json:"notes"`
}

// ListFilter holds the caller-supplied list filters.
type ListFilter struct {
	Status Status
	Date   string
}

// Filter is the repository query. Zero fields are unconstrained.
type Filter struct {
	PatientID int64
	DoctorID  int64
	Status    Status
	Statuses  []Status
	Date      string
	DateFrom  string
	DateTo    string
	Time      string
}

const (
	DefaultDurationMinutes = 30
	dateLayout             = "2006-01-02"
	unknownName            = "Unknown"
)

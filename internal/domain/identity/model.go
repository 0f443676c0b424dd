package identity

import (
	"strings"
	"time"

	"github.com/harms/harms/internal/platform/auth"
)

// User maps to the users table.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Role         auth.Role `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`

	// Exactly one of these is set, matching Role. Admins carry neither.
	Doctor  *DoctorProfile  `json:"doctor_profile,omitempty"`
	Patient *PatientProfile `json:"patient_profile,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DoctorProfile holds doctor-only attributes.
type DoctorProfile struct {
	Specialty       *string `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber   *string `db:"license_number" json:"license_number,omitempty"`
	ExperienceYears *int    `db:"experience_years" json:"experience_years,omitempty"`
}

// PatientProfile holds patient-only attributes. DateOfBirth is YYYY-MM-DD.
type PatientProfile struct {
	DateOfBirth      *string `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender           *string `db:"gender" json:"gender,omitempty"`
	Address          *string `db:"address" json:"address,omitempty"`
	EmergencyContact *string `db:"emergency_contact" json:"emergency_contact,omitempty"`
}

// Profile is the role-specific variant of a user.
type Profile interface {
	profileRole() auth.Role
}

func (*DoctorProfile) profileRole() auth.Role  { return auth.RoleDoctor }
func (*PatientProfile) profileRole() auth.Role { return auth.RolePatient }

// Profile returns the variant matching the user's role, or nil for admins.
func (u *User) Profile() Profile {
	switch u.Role {
	case auth.RoleDoctor:
		if u.Doctor == nil {
			u.Doctor = &DoctorProfile{}
		}
		return u.Doctor
	case auth.RolePatient:
		if u.Patient == nil {
			u.Patient = &PatientProfile{}
		}
		return u.Patient
	default:
		return nil
	}
}

// normalizeProfile drops any profile that does not match the role.
func (u *User) normalizeProfile() {
	if u.Role != auth.RoleDoctor {
		u.Doctor = nil
	}
	if u.Role != auth.RolePatient {
		u.Patient = nil
	}
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

// Filter narrows List results.
type Filter struct {
	Role   auth.Role
	Search string
}

// DoctorSummary is the public listing of a bookable doctor.
type DoctorSummary struct {
	ID              int64   `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	FullName        string  `json:"full_name"`
	Specialty       *string `json:"specialty,omitempty"`
	ExperienceYears *int    `json:"experience_years,omitempty"`
}

func (u *User) DoctorSummary() DoctorSummary {
	s := DoctorSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, FullName: u.FullName()}
	if u.Doctor != nil {
		s.Specialty = u.Doctor.Specialty
		s.ExperienceYears = u.Doctor.ExperienceYears
	}
	return s
}

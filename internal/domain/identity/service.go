package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harms/harms/internal/platform/apperror"
	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
	"github.com/harms/harms/internal/platform/notification"
	"github.com/harms/harms/pkg/pagination"
)

var (
	ErrInvalidCredentials = apperror.Auth("invalid email or password")
	ErrDeactivated        = apperror.Auth("account is deactivated")
	ErrEmailTaken         = apperror.Conflict("user with this email already exists")
	ErrAccessDenied       = apperror.Forbidden("access denied")
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
	dateLayout     = "2006-01-02"
)

var (
	emailRe  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigit = regexp.MustCompile(`\D`)
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

// RegisterRequest is the payload of self-registration and of the bootstrap CLI.
type RegisterRequest struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      auth.Role `json:"role"`
	Phone     *string   `json:"phone"`

	Specialty       *string `json:"specialty"`
	LicenseNumber   *string `json:"license_number"`
	ExperienceYears *int    `json:"experience_years"`

	DateOfBirth      *string `json:"date_of_birth"`
	Gender           *string `json:"gender"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergency_contact"`
}

// ProfileUpdate changes the caller's own names, phone and role profile. Nil
// fields are left untouched; fields of another role's profile are ignored.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`

	Specialty       *string `json:"specialty"`
	LicenseNumber   *string `json:"license_number"`
	ExperienceYears *int    `json:"experience_years"`

	DateOfBirth      *string `json:"date_of_birth"`
	Gender           *string `json:"gender"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergency_contact"`
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	User        *User     `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
	mailer *notification.Mailer
	logger zerolog.Logger
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// SetMailer enables account notification email.
func (s *Service) SetMailer(m *notification.Mailer) { s.mailer = m }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func validatePhone(phone *string) error {
	if phone == nil {
		return nil
	}
	n := len(nonDigit.ReplaceAllString(*phone, ""))
	if n < 7 || n > 15 {
		return apperror.Validation("invalid phone number format")
	}
	return nil
}

func validatePatientProfile(p *PatientProfile) error {
	if p.DateOfBirth != nil {
		if _, err := time.Parse(dateLayout, *p.DateOfBirth); err != nil {
			return apperror.Validation("invalid date_of_birth format, use YYYY-MM-DD")
		}
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperror.Validation("invalid gender, must be male, female, or other")
	}
	return nil
}

func validateDoctorProfile(d *DoctorProfile) error {
	if d.ExperienceYears != nil && *d.ExperienceYears < 0 {
		return apperror.Validation("experience_years must not be negative")
	}
	return nil
}

func (req *RegisterRequest) toUser() (*User, error) {
	required := []struct{ field, value string }{
		{"email", req.Email},
		{"password", req.Password},
		{"first_name", req.FirstName},
		{"last_name", req.LastName},
		{"role", string(req.Role)},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, apperror.Validation("%s is required", r.field)
		}
	}

	email := normalizeEmail(req.Email)
	if !emailRe.MatchString(email) {
		return nil, apperror.Validation("invalid email format")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperror.Validation("password must be at least %d characters long", minPasswordLen)
	}
	if len(req.Password) > maxPasswordLen {
		return nil, apperror.Validation("password must be at most %d characters long", maxPasswordLen)
	}
	role := auth.Role(strings.ToLower(string(req.Role)))
	if !role.Valid() {
		return nil, apperror.Validation("invalid role, must be patient, doctor, or admin")
	}
	phone := trimPtr(req.Phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}

	u := &User{
		Email:     email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Phone:     phone,
		Role:      role,
		IsActive:  true,
	}
	switch role {
	case auth.RoleDoctor:
		u.Doctor = &DoctorProfile{
			Specialty:       trimPtr(req.Specialty),
			LicenseNumber:   trimPtr(req.LicenseNumber),
			ExperienceYears: req.ExperienceYears,
		}
		if err := validateDoctorProfile(u.Doctor); err != nil {
			return nil, err
		}
	case auth.RolePatient:
		u.Patient = &PatientProfile{
			DateOfBirth:      trimPtr(req.DateOfBirth),
			Gender:           trimPtr(req.Gender),
			Address:          trimPtr(req.Address),
			EmergencyContact: trimPtr(req.EmergencyContact),
		}
		if err := validatePatientProfile(u.Patient); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// CreateUser validates req and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, req RegisterRequest) (*User, error) {
	u, err := req.toUser()
	if err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken.WithCause(err)
		}
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	u, err := s.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrDeactivated
	}
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperror.Internal("issue token", err)
	}
	return &AuthResult{User: u, AccessToken: token, ExpiresAt: exp}, nil
}

// LoadPrincipal implements auth.PrincipalLoader.
func (s *Service) LoadPrincipal(ctx context.Context, userID int64) (auth.Principal, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Principal{}, apperror.Auth("user not found")
		}
		return auth.Principal{}, err
	}
	if !u.IsActive {
		return auth.Principal{}, ErrDeactivated
	}
	return u.Principal(), nil
}

func (s *Service) Me(ctx context.Context, viewer auth.Principal) (*User, error) {
	return s.users.GetByID(ctx, viewer.UserID)
}

func (s *Service) UpdateProfile(ctx context.Context, viewer auth.Principal, upd ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, viewer.UserID)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		if v == "" {
			return nil, apperror.Validation("first_name must not be empty")
		}
		u.FirstName = v
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		if v == "" {
			return nil, apperror.Validation("last_name must not be empty")
		}
		u.LastName = v
	}
	if upd.Phone != nil {
		u.Phone = trimPtr(upd.Phone)
		if err := validatePhone(u.Phone); err != nil {
			return nil, err
		}
	}

	switch p := u.Profile().(type) {
	case *DoctorProfile:
		if upd.Specialty != nil {
			p.Specialty = trimPtr(upd.Specialty)
		}
		if upd.LicenseNumber != nil {
			p.LicenseNumber = trimPtr(upd.LicenseNumber)
		}
		if upd.ExperienceYears != nil {
			p.ExperienceYears = upd.ExperienceYears
		}
		if err := validateDoctorProfile(p); err != nil {
			return nil, err
		}
	case *PatientProfile:
		if upd.DateOfBirth != nil {
			p.DateOfBirth = trimPtr(upd.DateOfBirth)
		}
		if upd.Gender != nil {
			p.Gender = trimPtr(upd.Gender)
		}
		if upd.Address != nil {
			p.Address = trimPtr(upd.Address)
		}
		if upd.EmergencyContact != nil {
			p.EmergencyContact = trimPtr(upd.EmergencyContact)
		}
		if err := validatePatientProfile(p); err != nil {
			return nil, err
		}
	}
	u.normalizeProfile()

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]*User, int, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperror.Validation("invalid role filter: %s", f.Role)
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.users.List(ctx, f, p.Limit(), p.Offset())
}

// Get returns any user to an admin and the caller's own record to anyone else.
func (s *Service) Get(ctx context.Context, viewer auth.Principal, id int64) (*User, error) {
	if !viewer.Is(auth.RoleAdmin) && viewer.UserID != id {
		return nil, ErrAccessDenied
	}
	return s.users.GetByID(ctx, id)
}

// Lookup returns a user without a visibility check, for other domains.
func (s *Service) Lookup(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]*User, error) {
	return s.users.GetMany(ctx, ids)
}

// SetActive activates or deactivates an account. Admins cannot deactivate
// themselves.
func (s *Service) SetActive(ctx context.Context, actor auth.Principal, id int64, active bool) error {
	if !active && actor.UserID == id {
		return apperror.Validation("cannot deactivate your own account")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", id).Bool("active", active).Int64("by", actor.UserID).Msg("user activation changed")

	if !active && u.IsActive && s.mailer != nil {
		email, data := u.Email, map[string]string{"name": u.FullName()}
		db.AfterCommit(ctx, func(ctx context.Context) {
			if err := s.mailer.Send(ctx, email, notification.TemplateAccountDeactivated, data); err != nil {
				s.logger.Warn().Err(err).Int64("user_id", id).Msg("deactivation email failed")
			}
		})
	}
	return nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]DoctorSummary, error) {
	users, err := s.users.ListActiveDoctors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DoctorSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.DoctorSummary())
	}
	return out, nil
}
